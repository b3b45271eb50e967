package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FileStore persists one JSON document per key under a root directory.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the root directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(key string) string {
	// Keys are caller-controlled identifiers; keep them filesystem-safe.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(f.dir, safe+".json")
}

// Put stores a full JSON document under key
func (f *FileStore) Put(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return os.WriteFile(f.path(key), value, 0644)
}

// Get returns the document stored under key or ErrNotFound
func (f *FileStore) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// SetField updates one JSON path inside an existing document
func (f *FileStore) SetField(key, path string, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file := f.path(key)
	doc, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}

	updated, err := sjson.SetBytes(doc, path, value)
	if err != nil {
		return err
	}
	return os.WriteFile(file, updated, 0644)
}

// Query scans every stored document and returns those matching the filter
func (f *FileStore) Query(filter Filter) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}

	var out [][]byte
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		doc, err := os.ReadFile(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			continue
		}
		if gjson.GetBytes(doc, filter.Path).String() == filter.Value {
			out = append(out, doc)
		}
	}
	return out, nil
}
