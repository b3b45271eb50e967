// Package store provides the durable job/segment store contract and its
// implementations: a JSON file store, an in-process memory store, and a
// two-tier fallback that degrades observably from the first to the second.
package store

import "errors"

// ErrNotFound indicates the key has no stored document.
var ErrNotFound = errors.New("store: key not found")

// Filter selects documents whose value at a JSON path equals Value.
type Filter struct {
	Path  string
	Value string
}

// Store is an abstract key/value + query store over JSON documents.
type Store interface {
	// Put stores a full JSON document under key.
	Put(key string, value []byte) error
	// Get returns the document stored under key or ErrNotFound.
	Get(key string) ([]byte, error)
	// SetField updates a single JSON path inside an existing document.
	SetField(key, path string, value interface{}) error
	// Query returns every document matching the filter.
	Query(filter Filter) ([][]byte, error)
}
