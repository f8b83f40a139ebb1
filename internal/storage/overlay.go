package storage

import (
	"sort"
	"strings"
)

// Overlay buffers writes on top of an inner DB. Reads see the buffered
// changes first and fall through to the inner DB otherwise. Nothing reaches
// the inner DB until Commit, which flushes every change through one Batch.
type Overlay struct {
	inner   DB
	pending map[string][]byte // nil value marks a deletion
}

// NewOverlay creates an empty overlay over inner.
func NewOverlay(inner DB) *Overlay {
	return &Overlay{inner: inner, pending: make(map[string][]byte)}
}

// Get retrieves a value by key.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	if v, ok := o.pending[string(key)]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return append([]byte{}, v...), nil
	}
	return o.inner.Get(key)
}

// Put buffers a key-value pair.
func (o *Overlay) Put(key, value []byte) error {
	o.pending[string(key)] = append([]byte{}, value...)
	return nil
}

// Delete buffers a deletion.
func (o *Overlay) Delete(key []byte) error {
	o.pending[string(key)] = nil
	return nil
}

// Has checks if a key exists.
func (o *Overlay) Has(key []byte) (bool, error) {
	if v, ok := o.pending[string(key)]; ok {
		return v != nil, nil
	}
	return o.inner.Has(key)
}

// ForEach iterates over the merged view of buffered and committed keys
// with the given prefix, in key order.
func (o *Overlay) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	err := o.inner.ForEach(prefix, func(key, value []byte) error {
		merged[string(key)] = append([]byte{}, value...)
		return nil
	})
	if err != nil {
		return err
	}
	p := string(prefix)
	for k, v := range o.pending {
		if !strings.HasPrefix(k, p) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = append([]byte{}, v...)
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

// Dirty reports whether the overlay holds uncommitted changes.
func (o *Overlay) Dirty() bool {
	return len(o.pending) > 0
}

// Commit flushes all buffered changes to the inner DB in a single batch
// and clears the buffer. The buffer is kept if the commit fails.
func (o *Overlay) Commit() error {
	if !o.Dirty() {
		return nil
	}
	keys := make([]string, 0, len(o.pending))
	for k := range o.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := NewBatch(o.inner)
	for _, k := range keys {
		var err error
		if v := o.pending[k]; v == nil {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Put([]byte(k), v)
		}
		if err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	o.pending = make(map[string][]byte)
	return nil
}

// Discard drops all buffered changes.
func (o *Overlay) Discard() {
	o.pending = make(map[string][]byte)
}

// Close discards buffered changes. The inner DB is left open.
func (o *Overlay) Close() error {
	o.Discard()
	return nil
}
