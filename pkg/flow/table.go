package flow

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MaxBits is the largest bucket-count exponent. Bucket selection keeps the
// top bits of a 16-bit fingerprint, so more than 2^16 buckets cannot be
// addressed.
const MaxBits = 16

// Table is a fixed-size chained hash table of tracked connections.
//
// Structural changes (Insert, Remove, Teardown) hold the write lock for the
// whole operation, so duplicate detection and link-in are one step. Find and
// Range take the read lock and never see a half-linked chain.
type Table struct {
	mu      sync.RWMutex
	buckets []*Entry
	bits    uint8
	closed  bool

	// live mirrors the number of reachable entries. It is only changed
	// under mu but may be read without it.
	live atomic.Int64

	maxEntries int
}

// Option configures a Table.
type Option func(*Table)

// WithMaxEntries caps the number of live entries. Inserts beyond the cap
// fail with ErrTableFull. n <= 0 means unlimited.
func WithMaxEntries(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.maxEntries = n
		}
	}
}

// NewTable allocates a table with 2^bits empty buckets.
func NewTable(bits uint8, opts ...Option) (*Table, error) {
	if bits > MaxBits {
		return nil, fmt.Errorf("%w: bits %d exceeds %d", ErrConfiguration, bits, MaxBits)
	}
	t := &Table{
		buckets: make([]*Entry, 1<<bits),
		bits:    bits,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Bits returns the bucket-count exponent.
func (t *Table) Bits() uint8 { return t.bits }

// Len returns the number of live entries.
func (t *Table) Len() int { return int(t.live.Load()) }

// Insert links a new entry for key with the given initial state. It fails
// with ErrDuplicate, without touching the table, if key is already tracked.
func (t *Table) Insert(key Key, initial State) (*Entry, error) {
	idx := bucketIndex(key, t.bits)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			return nil, ErrDuplicate
		}
	}
	if t.maxEntries > 0 && int(t.live.Load()) >= t.maxEntries {
		return nil, ErrTableFull
	}

	e := &Entry{key: key, state: initial}
	e.next = t.buckets[idx]
	t.buckets[idx] = e
	t.live.Add(1)
	return e, nil
}

// Find returns the entry for key.
func (t *Table) Find(key Key) (*Entry, error) {
	idx := bucketIndex(key, t.bits)

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, ErrClosed
	}
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// Remove unlinks the entry for key.
func (t *Table) Remove(key Key) error {
	idx := bucketIndex(key, t.bits)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	for link := &t.buckets[idx]; *link != nil; link = &(*link).next {
		if e := *link; e.key == key {
			*link = e.next
			e.next = nil
			t.live.Add(-1)
			return nil
		}
	}
	return ErrNotFound
}

// Range calls fn with a snapshot of every entry until fn returns false.
// fn must not call back into the table.
func (t *Table) Range(fn func(Key, State) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return
	}
	for _, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			if !fn(e.key, e.State()) {
				return
			}
		}
	}
}

// Teardown drops every entry and the bucket array. The table is unusable
// afterwards; all operations return ErrClosed.
func (t *Table) Teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	for i, head := range t.buckets {
		for e := head; e != nil; {
			next := e.next
			e.next = nil
			e = next
		}
		t.buckets[i] = nil
	}
	t.buckets = nil
	t.closed = true
	t.live.Store(0)
}
