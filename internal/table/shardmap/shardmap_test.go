package shardmap

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/kvmix/internal/workload"
)

var (
	_ workload.Table[uint64, uint64] = (*Map[uint64, uint64])(nil)
	_ workload.Table[string, string] = (*Map[string, string])(nil)
	_ workload.Table[[]byte, []byte] = (*BytesMap)(nil)
)

func TestMap_Semantics(t *testing.T) {
	m := New[uint64, string](16, 4, HashUint64)

	ok, err := m.Insert(1, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = m.Insert(1, "b")
	assert.False(t, ok, "insert of a present key fails")

	v, ok, _ := m.Read(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	ok, _ = m.Update(1, "c")
	assert.True(t, ok)
	v, _, _ = m.Read(1)
	assert.Equal(t, "c", v)

	ok, _ = m.Update(2, "x")
	assert.False(t, ok, "update of an absent key fails")
	_, ok, _ = m.Read(2)
	assert.False(t, ok, "failed update does not insert")

	ok, _ = m.Erase(1)
	assert.True(t, ok)
	ok, _ = m.Erase(1)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMap_ShardCountRoundsUp(t *testing.T) {
	assert.Equal(t, 8, New[uint64, int](0, 5, HashUint64).Shards())
	assert.Equal(t, 1, New[uint64, int](0, 1, HashUint64).Shards())
	assert.Equal(t, DefaultShards(), New[uint64, int](0, 0, HashUint64).Shards())
}

func TestMap_SpreadsKeys(t *testing.T) {
	m := New[uint64, struct{}](0, 8, HashUint64)
	used := make(map[uint64]bool)
	for k := uint64(0); k < 256; k++ {
		used[HashUint64(k)&m.mask] = true
	}
	assert.Len(t, used, 8)
}

func TestMap_Concurrent(t *testing.T) {
	m := New[string, int](1024, 0, HashString)
	const goroutines, perG = 8, 500

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				k := fmt.Sprintf("%d-%d", g, i)
				ok, _ := m.Insert(k, i)
				assert.True(t, ok)
				ok, _ = m.Update(k, i+1)
				assert.True(t, ok)
				if i%2 == 0 {
					ok, _ = m.Erase(k)
					assert.True(t, ok)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, goroutines*perG/2, m.Len())
}

func TestBytesMap(t *testing.T) {
	m := NewBytes(8, 2)
	key := []byte{0, 1, 2}

	ok, _ := m.Insert(key, []byte("v1"))
	assert.True(t, ok)

	// A different slice with the same contents addresses the same entry.
	v, ok, _ := m.Read([]byte{0, 1, 2})
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	key[0] = 9
	_, ok, _ = m.Read([]byte{0, 1, 2})
	assert.True(t, ok, "stored key is not aliased to the caller's slice")

	ok, _ = m.Erase([]byte{0, 1, 2})
	assert.True(t, ok)
	assert.Equal(t, 0, m.Len())
}
