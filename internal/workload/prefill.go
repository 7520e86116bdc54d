package workload

import (
	"context"
	"fmt"

	kverrors "github.com/arkilian/kvmix/internal/errors"
)

// abortCheckInterval is how many prefill inserts run between checks for a
// failed sibling.
const abortCheckInterval = 1024

// worker is the per-goroutine view of the shared run: the table, the key and
// value functions, and this goroutine's slot in the keyspace.
type worker[K, V any] struct {
	thread  int
	threads int
	table   Table[K, V]
	gen     Generator[K, V]
}

func (w *worker[K, V]) key(seq uint64) K {
	return w.gen.Key(seq, w.thread, w.threads)
}

// prefillThread inserts sequence numbers [0, n) into this thread's keyspace.
// Nothing has touched the keyspace yet, so every insert must succeed.
func prefillThread[K, V any](ctx context.Context, w *worker[K, V], n uint64) error {
	for seq := uint64(0); seq < n; seq++ {
		if seq%abortCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		ok, err := w.table.Insert(w.key(seq), w.gen.Value())
		if err != nil {
			return kverrors.NewAdapterError(kverrors.CodeOperationFailed,
				fmt.Sprintf("thread %d: prefill insert of sequence %d failed", w.thread, seq), err)
		}
		if !ok {
			return kverrors.NewInvariantViolation(kverrors.CodePrefillInsertFailed,
				fmt.Sprintf("thread %d: prefill insert of sequence %d reported the key as present", w.thread, seq)).
				WithDetails(map[string]interface{}{
					"thread":   w.thread,
					"sequence": seq,
				})
		}
	}
	return nil
}
