package store

import (
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MemoryStore is a mutex-guarded in-process store. It is safe for concurrent
// use across jobs and serves as the fallback tier when the durable store is
// unavailable.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Put stores a full JSON document under key
func (m *MemoryStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), value...)
	return nil
}

// Get returns the document stored under key or ErrNotFound
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// SetField updates one JSON path inside an existing document
func (m *MemoryStore) SetField(key, path string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return ErrNotFound
	}
	updated, err := sjson.SetBytes(doc, path, value)
	if err != nil {
		return err
	}
	m.docs[key] = updated
	return nil
}

// Query returns every document matching the filter
func (m *MemoryStore) Query(filter Filter) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out [][]byte
	for _, doc := range m.docs {
		if gjson.GetBytes(doc, filter.Path).String() == filter.Value {
			out = append(out, append([]byte(nil), doc...))
		}
	}
	return out, nil
}
