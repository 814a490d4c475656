package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// walker selects input files by include and exclude glob patterns matched
// against paths relative to the walk root.
type walker struct {
	includes []string
	excludes []string
}

func newWalker(includes, excludes []string) *walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &walker{includes: includes, excludes: excludes}
}

// walk returns the matching files under each root, in lexical order per
// root. A root naming a regular file is returned as is.
func (w *walker) walk(roots []string) ([]string, error) {
	var files []string
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("input path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				if rel != "." && w.excluded(rel+"/") {
					return filepath.SkipDir
				}
				return nil
			}
			if w.included(rel) && !w.excluded(rel) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	return files, nil
}

func (w *walker) included(path string) bool {
	return matchAny(w.includes, path)
}

func (w *walker) excluded(path string) bool {
	return matchAny(w.excludes, path)
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// readDocuments calls fn with every JSON document in path. NDJSON files
// hold one object per line; other files hold one object or an array of
// objects. line is 1-based for NDJSON and the array position otherwise.
func readDocuments(path string, fn func(line int, doc string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".ndjson") {
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
		line := 0
		for sc.Scan() {
			line++
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				continue
			}
			if err := fn(line, text); err != nil {
				return err
			}
		}
		return sc.Err()
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return err
	}
	data := bytes.TrimSpace(buf.Bytes())
	if len(data) > 0 && data[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(data, &docs); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for i, doc := range docs {
			if err := fn(i+1, string(doc)); err != nil {
				return err
			}
		}
		return nil
	}
	return fn(1, string(data))
}
