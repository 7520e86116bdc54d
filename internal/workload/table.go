// Package workload generates a percentage-accurate mix of table operations and
// drives it concurrently against a shared table, checking every outcome
// against a prediction made from private per-thread state.
package workload

// Table is the capability set the engine needs from the store under test.
// Implementations must be safe for concurrent use; the engine adds no locking.
// A non-nil error means the store itself failed and aborts the run.
type Table[K, V any] interface {
	// Insert returns true iff key was absent and is now present with value.
	Insert(key K, value V) (bool, error)

	// Read returns true iff key is present. The value is defined only then.
	Read(key K) (V, bool, error)

	// Erase returns true iff key was present and is now removed.
	Erase(key K) (bool, error)

	// Update returns true iff key was present and its value is now replaced.
	Update(key K, value V) (bool, error)
}

// KeyFunc maps a thread-local sequence number to a key. For a fixed thread
// count it must be injective over (seq, thread) so thread keyspaces never overlap.
type KeyFunc[K any] func(seq uint64, thread, threads int) K

// ValueFunc produces the value written by inserts and updates.
type ValueFunc[V any] func() V

// Generator bundles the key and value functions for one key/value type pair.
type Generator[K, V any] struct {
	Key   KeyFunc[K]
	Value ValueFunc[V]
}

// OpenFunc constructs the shared table sized for the given initial capacity.
// If the returned table implements io.Closer it is closed when the run ends.
type OpenFunc[K, V any] func(capacity uint64) (Table[K, V], error)
