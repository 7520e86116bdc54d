// Package keygen provides the key and value functions used to drive a table.
//
// Keys interleave thread keyspaces: sequence number s of thread t out of n
// becomes s*n + t, so two threads never produce the same key. Values are
// constant per run, matching a benchmark that cares about the cost of the
// table operation and not of producing its payload.
package keygen

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/arkilian/kvmix/internal/workload"
)

// KeyType names a supported key representation.
type KeyType string

const (
	KeyUint64 KeyType = "uint64"
	KeyString KeyType = "string"
	KeyBytes  KeyType = "bytes"
)

// Uint64 interleaves per-thread sequence numbers into one integer space.
func Uint64(seq uint64, thread, threads int) uint64 {
	return seq*uint64(threads) + uint64(thread)
}

// String renders the Uint64 key in decimal.
func String(seq uint64, thread, threads int) string {
	return strconv.FormatUint(Uint64(seq, thread, threads), 10)
}

// Bytes encodes the Uint64 key as 8 big-endian bytes. Each call allocates a
// new slice, so stores may retain it.
func Bytes(seq uint64, thread, threads int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, Uint64(seq, thread, threads))
	return b
}

// Uint64Value returns a function producing a fixed integer value.
func Uint64Value() workload.ValueFunc[uint64] {
	return func() uint64 { return 0 }
}

// StringValue returns a function producing a fixed string of size bytes.
func StringValue(size int) workload.ValueFunc[string] {
	v := strings.Repeat("v", size)
	return func() string { return v }
}

// BytesValue returns a function producing a fixed slice of size bytes. The
// slice is shared by every call and must be treated as read-only.
func BytesValue(size int) workload.ValueFunc[[]byte] {
	v := make([]byte, size)
	for i := range v {
		v[i] = byte('a' + i%26)
	}
	return func() []byte { return v }
}

// Uint64Keys pairs Uint64 keys with fixed integer values.
func Uint64Keys() workload.Generator[uint64, uint64] {
	return workload.Generator[uint64, uint64]{Key: Uint64, Value: Uint64Value()}
}

// StringKeys pairs String keys with fixed string values of valueSize bytes.
func StringKeys(valueSize int) workload.Generator[string, string] {
	return workload.Generator[string, string]{Key: String, Value: StringValue(valueSize)}
}

// BytesKeys pairs Bytes keys with fixed byte values of valueSize bytes.
func BytesKeys(valueSize int) workload.Generator[[]byte, []byte] {
	return workload.Generator[[]byte, []byte]{Key: Bytes, Value: BytesValue(valueSize)}
}
