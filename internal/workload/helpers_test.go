package workload

import (
	"errors"
	"log/slog"
	"sync"
)

// lockedMap is a minimal correct table for driving the engine in tests.
type lockedMap struct {
	mu     sync.Mutex
	m      map[uint64]uint64
	closed bool
}

func newLockedMap(capacity uint64) *lockedMap {
	return &lockedMap{m: make(map[uint64]uint64, capacity)}
}

func (t *lockedMap) Insert(k, v uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[k]; ok {
		return false, nil
	}
	t.m[k] = v
	return true, nil
}

func (t *lockedMap) Read(k uint64) (uint64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[k]
	return v, ok, nil
}

func (t *lockedMap) Erase(k uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[k]; !ok {
		return false, nil
	}
	delete(t.m, k)
	return true, nil
}

func (t *lockedMap) Update(k, v uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[k]; !ok {
		return false, nil
	}
	t.m[k] = v
	return true, nil
}

func (t *lockedMap) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *lockedMap) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// liarTable reports every key as present on read.
type liarTable struct {
	*lockedMap
}

func (t liarTable) Read(k uint64) (uint64, bool, error) {
	return 0, true, nil
}

// brokenTable fails every insert once failAfter inserts have succeeded.
type brokenTable struct {
	*lockedMap
	mu        sync.Mutex
	inserts   int
	failAfter int
}

var errDiskFull = errors.New("disk full")

func (t *brokenTable) Insert(k, v uint64) (bool, error) {
	t.mu.Lock()
	n := t.inserts
	t.inserts++
	t.mu.Unlock()
	if n >= t.failAfter {
		return false, errDiskFull
	}
	return t.lockedMap.Insert(k, v)
}

// panicTable panics on erase.
type panicTable struct {
	*lockedMap
}

func (t panicTable) Erase(k uint64) (bool, error) {
	panic("erase not supported")
}

func testGenerator() Generator[uint64, uint64] {
	return Generator[uint64, uint64]{
		Key: func(seq uint64, thread, threads int) uint64 {
			return seq*uint64(threads) + uint64(thread)
		},
		Value: func() uint64 { return 42 },
	}
}

func openLockedMap(out **lockedMap) OpenFunc[uint64, uint64] {
	return func(capacity uint64) (Table[uint64, uint64], error) {
		t := newLockedMap(capacity)
		if out != nil {
			*out = t
		}
		return t, nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
