package directory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// MetaFileName is the bbolt database holding the commit metadata.
const MetaFileName = "meta.db"

const lockTimeout = 5 * time.Second

var (
	metaBucket = []byte("meta")
	metaKey    = []byte("meta")
	opstampKey = []byte("opstamp")
)

// FSDirectory stores segment files in a directory and the metadata in a
// bbolt file next to them. The bbolt file is opened per operation so that
// a writer process and reader processes can share one index.
type FSDirectory struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// OpenFS opens or creates the directory at path.
func OpenFS(path string) (*FSDirectory, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, apperrors.IO("creating index directory", err)
	}
	return &FSDirectory{
		path:   path,
		logger: slog.Default().With("component", "fs-directory", "path", path),
	}, nil
}

// Exists reports whether path holds committed index metadata.
func Exists(path string) bool {
	info, err := os.Stat(filepath.Join(path, MetaFileName))
	return err == nil && !info.IsDir()
}

func (d *FSDirectory) Path() string { return d.path }

// WriteFile writes to a temporary file, syncs it and renames it into
// place.
func (d *FSDirectory) WriteFile(name string, data []byte) error {
	finalPath := filepath.Join(d.path, name)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return apperrors.IO("creating temp file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return apperrors.IO(fmt.Sprintf("writing %s", name), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return apperrors.IO(fmt.Sprintf("syncing %s", name), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.IO(fmt.Sprintf("closing %s", name), err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return apperrors.IO(fmt.Sprintf("renaming %s", name), err)
	}
	return nil
}

type osFile struct {
	*os.File
	size int64
}

func (f osFile) Size() int64 { return f.size }

func (d *FSDirectory) Open(name string) (File, error) {
	f, err := os.Open(filepath.Join(d.path, name))
	if err != nil {
		return nil, apperrors.IO(fmt.Sprintf("opening %s", name), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, apperrors.IO(fmt.Sprintf("stat %s", name), err)
	}
	return osFile{File: f, size: info.Size()}, nil
}

func (d *FSDirectory) Remove(name string) error {
	if err := os.Remove(filepath.Join(d.path, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.IO(fmt.Sprintf("removing %s", name), err)
	}
	return nil
}

// List returns the segment files in the directory.
func (d *FSDirectory) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, apperrors.IO("reading index directory", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), SegmentExt) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *FSDirectory) HasMeta() (bool, error) {
	return Exists(d.path), nil
}

func (d *FSDirectory) metaPath() string {
	return filepath.Join(d.path, MetaFileName)
}

func (d *FSDirectory) view(fn func(b *bbolt.Bucket) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !Exists(d.path) {
		return fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, d.path)
	}
	db, err := bbolt.Open(d.metaPath(), 0o644, &bbolt.Options{Timeout: lockTimeout, ReadOnly: true})
	if err != nil {
		return apperrors.IO("opening meta store", err)
	}
	defer db.Close()
	return db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b == nil {
			return fmt.Errorf("%w: meta bucket missing", apperrors.ErrIndexNotFound)
		}
		return fn(b)
	})
}

func (d *FSDirectory) LoadMeta() (*Meta, error) {
	var m *Meta
	err := d.view(func(b *bbolt.Bucket) error {
		data := b.Get(metaKey)
		if data == nil {
			return fmt.Errorf("%w: no committed metadata", apperrors.ErrIndexNotFound)
		}
		var err error
		m, err = decodeMeta(data)
		return err
	})
	return m, err
}

// Opstamp reads only the opstamp key, which keeps reload polling cheap.
func (d *FSDirectory) Opstamp() (uint64, error) {
	var op uint64
	err := d.view(func(b *bbolt.Bucket) error {
		raw := b.Get(opstampKey)
		if len(raw) != 8 {
			return fmt.Errorf("%w: corrupt opstamp", apperrors.ErrIO)
		}
		op = binary.BigEndian.Uint64(raw)
		return nil
	})
	return op, err
}

// CommitMeta runs fn inside one bbolt update transaction.
func (d *FSDirectory) CommitMeta(fn func(*Meta) error) (*Meta, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	db, err := bbolt.Open(d.metaPath(), 0o644, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, apperrors.IO("opening meta store", err)
	}
	defer db.Close()

	var next *Meta
	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return apperrors.IO("creating meta bucket", err)
		}
		var cur *Meta
		if data := b.Get(metaKey); data != nil {
			if cur, err = decodeMeta(data); err != nil {
				return err
			}
		}
		next = cur.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.Version = MetaVersion
		data, err := encodeMeta(next)
		if err != nil {
			return err
		}
		if err := b.Put(metaKey, data); err != nil {
			return apperrors.IO("storing meta", err)
		}
		if err := b.Put(opstampKey, binary.BigEndian.AppendUint64(nil, next.Opstamp)); err != nil {
			return apperrors.IO("storing opstamp", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.logger.Debug("meta committed", "opstamp", next.Opstamp, "segments", len(next.Segments))
	return next, nil
}

func (d *FSDirectory) Close() error { return nil }

func (d *FSDirectory) String() string { return "FSDirectory(" + d.path + ")" }
