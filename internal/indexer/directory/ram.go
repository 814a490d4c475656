package directory

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// RAMDirectory keeps files and metadata in memory. Metadata is stored
// encoded and replaced wholesale on commit.
type RAMDirectory struct {
	mu    sync.RWMutex
	files map[string][]byte
	meta  []byte
}

func NewRAMDirectory() *RAMDirectory {
	return &RAMDirectory{files: make(map[string][]byte)}
}

func (d *RAMDirectory) WriteFile(name string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[name] = append([]byte(nil), data...)
	return nil
}

type ramFile struct {
	*bytes.Reader
}

func (ramFile) Close() error { return nil }

func (d *RAMDirectory) Open(name string) (File, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.files[name]
	if !ok {
		return nil, apperrors.IO(fmt.Sprintf("opening %s", name), os.ErrNotExist)
	}
	return ramFile{bytes.NewReader(data)}, nil
}

func (d *RAMDirectory) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, name)
	return nil
}

func (d *RAMDirectory) List() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *RAMDirectory) HasMeta() (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.meta != nil, nil
}

func (d *RAMDirectory) LoadMeta() (*Meta, error) {
	d.mu.RLock()
	data := d.meta
	d.mu.RUnlock()
	if data == nil {
		return nil, fmt.Errorf("%w: no committed metadata", apperrors.ErrIndexNotFound)
	}
	return decodeMeta(data)
}

func (d *RAMDirectory) Opstamp() (uint64, error) {
	m, err := d.LoadMeta()
	if err != nil {
		return 0, err
	}
	return m.Opstamp, nil
}

func (d *RAMDirectory) CommitMeta(fn func(*Meta) error) (*Meta, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var cur *Meta
	if d.meta != nil {
		m, err := decodeMeta(d.meta)
		if err != nil {
			return nil, err
		}
		cur = m
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = MetaVersion
	data, err := encodeMeta(next)
	if err != nil {
		return nil, err
	}
	d.meta = data
	return next, nil
}

func (d *RAMDirectory) Close() error { return nil }

func (d *RAMDirectory) String() string { return "RAMDirectory" }
