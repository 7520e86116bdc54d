package workload

import (
	"context"
	"fmt"

	kverrors "github.com/arkilian/kvmix/internal/errors"
)

// MurmurHash mixing constants. Both are odd so that i*mixC1 + j*mixC2 does
// not fall into short cycles as i and j step through a run.
const (
	mixC1 uint64 = 0x5bd1e995
	mixC2 uint64 = 0xc6a4a7935bd1e995
)

// mixIndex derives the pseudo-random access value for operation i at
// schedule position j. Arithmetic wraps at 64 bits.
func mixIndex(i, j uint64) uint64 {
	return i*mixC1 + j*mixC2
}

// upsertInserts reports whether an upsert with mixing value x takes the insert
// branch. The low bit of x always equals the parity of i+j, which is even
// because the schedule length is even, so the choice uses the top bit.
func upsertInserts(x uint64) bool {
	return x>>63 == 0
}

// liveRange is the half-open interval [eraseSeq, insertSeq) of sequence
// numbers a worker expects to be present. eraseSeq <= insertSeq always holds.
type liveRange struct {
	eraseSeq  uint64
	insertSeq uint64
}

func (r liveRange) contains(seq uint64) bool {
	return seq >= r.eraseSeq && seq < r.insertSeq
}

func (r liveRange) empty() bool {
	return r.eraseSeq == r.insertSeq
}

// ThreadResult is the final state of one mixed-phase worker.
type ThreadResult struct {
	Thread        int    `json:"thread"`
	Prefill       uint64 `json:"prefill"`
	Ops           uint64 `json:"ops"`
	EraseSeq      uint64 `json:"erase_seq"`
	InsertSeq     uint64 `json:"insert_seq"`
	UpsertInserts uint64 `json:"upsert_inserts"`
	Stats         Stats  `json:"-"`
}

// opRef identifies one operation for error reporting.
type opRef struct {
	kind OpKind
	i    uint64
	j    uint64
	seq  uint64
}

// check turns a store call outcome into an error when the store failed or the
// outcome differs from the prediction.
func (w *worker[K, V]) check(op opRef, live liveRange, expected, actual bool, err error) error {
	if err != nil {
		return kverrors.NewAdapterError(kverrors.CodeOperationFailed,
			fmt.Sprintf("thread %d op %d: %s of sequence %d failed", w.thread, op.i, op.kind, op.seq), err)
	}
	if expected == actual {
		return nil
	}
	return kverrors.NewInvariantViolation(kverrors.CodeOutcomeMismatch,
		fmt.Sprintf("thread %d op %d: %s of sequence %d returned %t, expected %t (live range [%d,%d))",
			w.thread, op.i, op.kind, op.seq, actual, expected, live.eraseSeq, live.insertSeq)).
		WithDetails(map[string]interface{}{
			"thread":     w.thread,
			"op_index":   op.i,
			"position":   op.j,
			"kind":       op.kind.String(),
			"sequence":   op.seq,
			"expected":   expected,
			"actual":     actual,
			"erase_seq":  live.eraseSeq,
			"insert_seq": live.insertSeq,
		})
}

// mixThread runs numOps timed operations for one worker, walking the shared
// schedule cyclically and asserting every outcome against the live range.
func mixThread[K, V any](ctx context.Context, w *worker[K, V], numOps uint64, sched *Schedule, prefill uint64) (res ThreadResult, err error) {
	res = ThreadResult{Thread: w.thread, Prefill: prefill, Ops: numOps}
	live := liveRange{insertSeq: prefill}
	defer func() {
		res.EraseSeq, res.InsertSeq = live.eraseSeq, live.insertSeq
	}()

	for i := uint64(0); i < numOps; {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for j := uint64(0); j < ScheduleLen && i < numOps; i, j = i+1, j+1 {
			x := mixIndex(i, j)
			kind := sched[j]
			var err error

			switch kind {
			case OpRead:
				// x is large and unrelated to numOps, so x % numOps spreads reads
				// across the whole range the run can ever insert.
				seq := x % numOps
				_, ok, rerr := w.table.Read(w.key(seq))
				res.Stats.record(kind, ok)
				err = w.check(opRef{kind, i, j, seq}, live, live.contains(seq), ok, rerr)

			case OpUpdate:
				seq := x % numOps
				ok, uerr := w.table.Update(w.key(seq), w.gen.Value())
				res.Stats.record(kind, ok)
				err = w.check(opRef{kind, i, j, seq}, live, live.contains(seq), ok, uerr)

			case OpInsert:
				seq := live.insertSeq
				ok, ierr := w.table.Insert(w.key(seq), w.gen.Value())
				res.Stats.record(kind, ok)
				err = w.check(opRef{kind, i, j, seq}, live, true, ok, ierr)
				live.insertSeq++

			case OpErase:
				// With no inserts in a while this keeps targeting the same
				// already-erased sequence number and failing as predicted.
				seq := live.eraseSeq
				expected := !live.empty()
				ok, eerr := w.table.Erase(w.key(seq))
				res.Stats.record(kind, ok)
				err = w.check(opRef{kind, i, j, seq}, live, expected, ok, eerr)
				if expected {
					live.eraseSeq++
				}

			case OpUpsert:
				if live.insertSeq == 0 || upsertInserts(x) {
					seq := live.insertSeq
					ok, ierr := w.table.Insert(w.key(seq), w.gen.Value())
					res.Stats.record(kind, ok)
					res.UpsertInserts++
					err = w.check(opRef{kind, i, j, seq}, live, true, ok, ierr)
					live.insertSeq++
				} else {
					seq := live.insertSeq - 1
					ok, uerr := w.table.Update(w.key(seq), w.gen.Value())
					res.Stats.record(kind, ok)
					err = w.check(opRef{kind, i, j, seq}, live, live.contains(seq), ok, uerr)
				}
			}

			if err != nil {
				return res, err
			}
		}
	}
	return res, nil
}
