// Package fastmap provides a fast hash map for integer keys.
// Uses fibonacci hashing for better distribution of sequential keys.
package fastmap

import "unsafe"

// Uint32Map is a fast hash map from uint32 to unsafe.Pointer.
// Uses open addressing with linear probing, fibonacci hashing, and
// tombstone deletion (Delete marks a slot rather than shifting the
// probe chain, since the verifier's pin-tracking use case churns through
// a handful of keys at a time rather than needing reclaimed capacity).
type Uint32Map struct {
	buckets []bucket
	count   int // live (non-tombstone) entries
	mask    uint32
}

type bucketState uint8

const (
	bucketEmpty bucketState = iota
	bucketUsed
	bucketTombstone
)

type bucket struct {
	key   uint32
	value unsafe.Pointer
	state bucketState
}

// Fibonacci hash constant: 2^32 / golden ratio
const fibHash32 = 2654435769

// hash computes a fast hash using fibonacci hashing
func (m *Uint32Map) hash(key uint32) uint32 {
	return key * fibHash32
}

// Get returns the value for the given key, or nil if not found.
func (m *Uint32Map) Get(key uint32) unsafe.Pointer {
	if len(m.buckets) == 0 {
		return nil
	}
	idx := m.hash(key) & m.mask
	for {
		b := &m.buckets[idx]
		switch b.state {
		case bucketEmpty:
			return nil
		case bucketUsed:
			if b.key == key {
				return b.value
			}
		}
		idx = (idx + 1) & m.mask
	}
}

// Set stores a key-value pair, overwriting any existing value for key.
func (m *Uint32Map) Set(key uint32, value unsafe.Pointer) {
	if len(m.buckets) == 0 {
		m.buckets = make([]bucket, 16)
		m.mask = 15
	} else if m.count >= len(m.buckets)*3/4 {
		m.grow()
	}

	idx := m.hash(key) & m.mask
	insertAt := uint32(0)
	haveInsertAt := false
	for {
		b := &m.buckets[idx]
		switch b.state {
		case bucketEmpty:
			if !haveInsertAt {
				insertAt = idx
			}
			m.buckets[insertAt] = bucket{key: key, value: value, state: bucketUsed}
			m.count++
			return
		case bucketUsed:
			if b.key == key {
				b.value = value
				return
			}
		case bucketTombstone:
			if !haveInsertAt {
				insertAt = idx
				haveInsertAt = true
			}
		}
		idx = (idx + 1) & m.mask
	}
}

// Delete removes key, if present. The slot is left as a tombstone so
// later Get/Set calls still find keys further along the probe chain.
func (m *Uint32Map) Delete(key uint32) {
	if len(m.buckets) == 0 {
		return
	}
	idx := m.hash(key) & m.mask
	for {
		b := &m.buckets[idx]
		switch b.state {
		case bucketEmpty:
			return
		case bucketUsed:
			if b.key == key {
				*b = bucket{state: bucketTombstone}
				m.count--
				return
			}
		}
		idx = (idx + 1) & m.mask
	}
}

// grow doubles the hash table size, dropping tombstones along the way.
func (m *Uint32Map) grow() {
	oldBuckets := m.buckets
	newSize := len(oldBuckets) * 2
	m.buckets = make([]bucket, newSize)
	m.mask = uint32(newSize - 1)
	m.count = 0

	for i := range oldBuckets {
		if oldBuckets[i].state == bucketUsed {
			m.Set(oldBuckets[i].key, oldBuckets[i].value)
		}
	}
}

// ForEach iterates over all live key-value pairs.
func (m *Uint32Map) ForEach(fn func(uint32, unsafe.Pointer)) {
	for i := range m.buckets {
		if m.buckets[i].state == bucketUsed {
			fn(m.buckets[i].key, m.buckets[i].value)
		}
	}
}

// Clear removes all entries but keeps the backing array.
func (m *Uint32Map) Clear() {
	clear(m.buckets)
	m.count = 0
}

// Len returns the number of live entries.
func (m *Uint32Map) Len() int {
	return m.count
}
