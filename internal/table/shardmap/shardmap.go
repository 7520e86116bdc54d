// Package shardmap provides an in-memory concurrent table that spreads keys
// over a power-of-two number of independently locked shards.
package shardmap

import (
	"encoding/binary"
	"runtime"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Hasher maps a key to a 64-bit hash used for shard selection.
type Hasher[K comparable] func(K) uint64

// HashUint64 hashes the big-endian encoding of k.
func HashUint64(k uint64) uint64 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], k)
	return murmur3.Sum64(b[:])
}

// HashString hashes the bytes of k.
func HashString(k string) uint64 {
	return murmur3.Sum64([]byte(k))
}

// HashBytes hashes k.
func HashBytes(k []byte) uint64 {
	return murmur3.Sum64(k)
}

type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
	// Keeps neighbouring shard locks off the same cache line.
	_ [40]byte
}

// Map is a concurrent map with insert-if-absent and update-if-present
// semantics. The zero value is not usable; call New.
type Map[K comparable, V any] struct {
	shards []shard[K, V]
	mask   uint64
	hash   Hasher[K]
}

// DefaultShards returns the shard count used when none is configured: the
// next power of two at or above 4*GOMAXPROCS.
func DefaultShards() int {
	return nextPow2(4 * runtime.GOMAXPROCS(0))
}

// New creates a map sized for capacity elements. shards is rounded up to a
// power of two; values below 1 select DefaultShards.
func New[K comparable, V any](capacity uint64, shards int, hash Hasher[K]) *Map[K, V] {
	if shards < 1 {
		shards = DefaultShards()
	}
	shards = nextPow2(shards)

	perShard := int(capacity / uint64(shards))
	m := &Map[K, V]{
		shards: make([]shard[K, V], shards),
		mask:   uint64(shards - 1),
		hash:   hash,
	}
	for i := range m.shards {
		m.shards[i].m = make(map[K]V, perShard)
	}
	return m
}

func (m *Map[K, V]) shardFor(k K) *shard[K, V] {
	return &m.shards[m.hash(k)&m.mask]
}

// Insert stores value under key if key is absent.
func (m *Map[K, V]) Insert(key K, value V) (bool, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return false, nil
	}
	s.m[key] = value
	return true, nil
}

// Read returns the value stored under key.
func (m *Map[K, V]) Read(key K) (V, bool, error) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	return v, ok, nil
}

// Erase removes key if present.
func (m *Map[K, V]) Erase(key K) (bool, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return false, nil
	}
	delete(s.m, key)
	return true, nil
}

// Update replaces the value under key if key is present.
func (m *Map[K, V]) Update(key K, value V) (bool, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return false, nil
	}
	s.m[key] = value
	return true, nil
}

// Len returns the number of stored elements. It locks every shard in turn,
// so the result is only exact when no writers are running.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Shards returns the number of shards.
func (m *Map[K, V]) Shards() int {
	return len(m.shards)
}

// BytesMap adapts Map to []byte keys, which are not comparable, by storing
// them as strings.
type BytesMap struct {
	inner *Map[string, []byte]
}

// NewBytes creates a BytesMap. See New for the meaning of the arguments.
func NewBytes(capacity uint64, shards int) *BytesMap {
	return &BytesMap{inner: New[string, []byte](capacity, shards, HashString)}
}

func (b *BytesMap) Insert(key, value []byte) (bool, error) {
	return b.inner.Insert(string(key), value)
}

func (b *BytesMap) Read(key []byte) ([]byte, bool, error) {
	return b.inner.Read(string(key))
}

func (b *BytesMap) Erase(key []byte) (bool, error) {
	return b.inner.Erase(string(key))
}

func (b *BytesMap) Update(key, value []byte) (bool, error) {
	return b.inner.Update(string(key), value)
}

// Len returns the number of stored elements.
func (b *BytesMap) Len() int {
	return b.inner.Len()
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
