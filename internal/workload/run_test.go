package workload

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kverrors "github.com/arkilian/kvmix/internal/errors"
)

func TestRun_ReadInsertSingleThread(t *testing.T) {
	var table *lockedMap
	cfg := Config{
		Mix:              Mix{Reads: 50, Inserts: 50},
		CapacityExponent: 10,
		PrefillPercent:   50,
		TotalOpsPercent:  90,
		Threads:          1,
	}

	res, err := Run(context.Background(), cfg, openLockedMap(&table), testGenerator(), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, uint64(1024), res.InitialCapacity)
	assert.Equal(t, uint64(512), res.PrefillElems)
	assert.Equal(t, uint64(921), res.TotalOps)
	assert.Equal(t, uint64(921), res.Stats.Total())
	assert.Equal(t, uint64(0), res.Stats[OpErase].Calls)
	assert.Equal(t, res.Stats[OpInsert].Calls, res.Stats[OpInsert].Successes)
	require.Len(t, res.Threads, 1)
	assert.Equal(t, uint64(512)+res.Stats[OpInsert].Calls, res.Threads[0].InsertSeq)
	assert.Greater(t, res.Throughput, 0.0)
	assert.True(t, table.closed)
}

func TestRun_EraseOnly(t *testing.T) {
	cfg := Config{
		Mix:              Mix{Erases: 100},
		CapacityExponent: 8,
		PrefillPercent:   10,
		TotalOpsPercent:  100,
		Threads:          1,
	}

	res, err := Run(context.Background(), cfg, openLockedMap(nil), testGenerator(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, uint64(25), res.PrefillElems)
	assert.Equal(t, uint64(25), res.Stats[OpErase].Successes)
	assert.Equal(t, uint64(256), res.Stats[OpErase].Calls)
	assert.Equal(t, uint64(25), res.Threads[0].EraseSeq)
	assert.Equal(t, uint64(25), res.Threads[0].InsertSeq)
}

func TestRun_BadMixNeverOpensTable(t *testing.T) {
	opened := false
	open := func(capacity uint64) (Table[uint64, uint64], error) {
		opened = true
		return newLockedMap(capacity), nil
	}
	cfg := Config{
		Mix:              Mix{Reads: 40, Inserts: 40},
		CapacityExponent: 8,
		TotalOpsPercent:  100,
		Threads:          4,
	}

	res, err := Run(context.Background(), cfg, open, testGenerator(), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, kverrors.IsConfigurationError(err))
	assert.Equal(t, kverrors.CodeMixSum, kverrors.GetCode(err))
	assert.False(t, opened)
}

func TestRun_MissingGenerator(t *testing.T) {
	cfg := Config{Mix: Mix{Reads: 100}, CapacityExponent: 4, TotalOpsPercent: 100, Threads: 1}
	_, err := Run(context.Background(), cfg, openLockedMap(nil), Generator[uint64, uint64]{}, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Equal(t, kverrors.CodeInvalidField, kverrors.GetCode(err))
}

func TestRun_OpenFailure(t *testing.T) {
	boom := errors.New("no space")
	open := func(capacity uint64) (Table[uint64, uint64], error) { return nil, boom }
	cfg := Config{Mix: Mix{Reads: 100}, CapacityExponent: 4, TotalOpsPercent: 100, Threads: 1}

	_, err := Run(context.Background(), cfg, open, testGenerator(), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Equal(t, kverrors.CodeOpenFailed, kverrors.GetCode(err))
	assert.ErrorIs(t, err, boom)
}

func TestRun_ManyThreads(t *testing.T) {
	var table *lockedMap
	cfg := Config{
		Mix:              Mix{Reads: 30, Inserts: 20, Erases: 15, Updates: 20, Upserts: 15},
		CapacityExponent: 12,
		PrefillPercent:   50,
		TotalOpsPercent:  300,
		Threads:          8,
	}

	res, err := Run(context.Background(), cfg, openLockedMap(&table), testGenerator(),
		WithLogger(quietLogger()), WithRand(rand.New(rand.NewPCG(3, 4))))
	require.NoError(t, err)
	assert.Equal(t, cfg.TotalOps(), res.Stats.Total())

	var live, prefill uint64
	for i, tr := range res.Threads {
		assert.Equal(t, i, tr.Thread)
		assert.LessOrEqual(t, tr.EraseSeq, tr.InsertSeq)
		live += tr.InsertSeq - tr.EraseSeq
		prefill += tr.Prefill
	}
	assert.Equal(t, cfg.PrefillElems(), prefill)
	assert.Equal(t, int(live), table.Len())
}

func TestRun_MoreThreadsThanOps(t *testing.T) {
	cfg := Config{Mix: Mix{Inserts: 100}, CapacityExponent: 2, TotalOpsPercent: 100, Threads: 6}
	res, err := Run(context.Background(), cfg, openLockedMap(nil), testGenerator(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.Stats.Total())
	assert.Equal(t, uint64(4), res.Threads[5].Ops)
}

func TestRun_ViolationStopsRun(t *testing.T) {
	var inner *lockedMap
	open := func(capacity uint64) (Table[uint64, uint64], error) {
		inner = newLockedMap(capacity)
		return liarTable{inner}, nil
	}
	cfg := Config{Mix: Mix{Reads: 100}, CapacityExponent: 12, PrefillPercent: 10, TotalOpsPercent: 100, Threads: 4}

	res, err := Run(context.Background(), cfg, open, testGenerator(), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, kverrors.CodeOutcomeMismatch, kverrors.GetCode(err))
	assert.True(t, inner.closed)
}

func TestRun_PanicBecomesInternalError(t *testing.T) {
	open := func(capacity uint64) (Table[uint64, uint64], error) {
		return panicTable{newLockedMap(capacity)}, nil
	}
	cfg := Config{Mix: Mix{Erases: 100}, CapacityExponent: 6, PrefillPercent: 50, TotalOpsPercent: 100, Threads: 2}

	_, err := Run(context.Background(), cfg, open, testGenerator(), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Equal(t, kverrors.ErrCategoryInternal, kverrors.GetCategory(err))
	assert.Contains(t, err.Error(), "erase not supported")
}

func TestRun_PrefillAdapterError(t *testing.T) {
	open := func(capacity uint64) (Table[uint64, uint64], error) {
		return &brokenTable{lockedMap: newLockedMap(capacity), failAfter: 10}, nil
	}
	cfg := Config{Mix: Mix{Reads: 100}, CapacityExponent: 10, PrefillPercent: 100, TotalOpsPercent: 100, Threads: 3}

	_, err := Run(context.Background(), cfg, open, testGenerator(), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
}

// TestProperty_RunAgreesWithCorrectTable checks that any valid mix driven
// against a correct table finishes without a violation and leaves exactly the
// predicted live keys behind.
func TestProperty_RunAgreesWithCorrectTable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("correct table never violates predictions", prop.ForAll(
		func(cuts []int, prefill uint, threads int) bool {
			sort.Ints(cuts)
			mix := Mix{
				Reads:   uint(cuts[0]),
				Inserts: uint(cuts[1] - cuts[0]),
				Erases:  uint(cuts[2] - cuts[1]),
				Updates: uint(cuts[3] - cuts[2]),
				Upserts: uint(100 - cuts[3]),
			}
			cfg := Config{
				Mix:              mix,
				CapacityExponent: 9,
				PrefillPercent:   prefill,
				TotalOpsPercent:  200,
				Threads:          threads,
			}

			var table *lockedMap
			res, err := Run(context.Background(), cfg, openLockedMap(&table), testGenerator(), WithLogger(quietLogger()))
			if err != nil {
				return false
			}

			var live uint64
			for _, tr := range res.Threads {
				if tr.EraseSeq > tr.InsertSeq {
					return false
				}
				live += tr.InsertSeq - tr.EraseSeq
			}
			return res.Stats.Total() == cfg.TotalOps() &&
				res.Stats[OpInsert].Successes == res.Stats[OpInsert].Calls &&
				int(live) == table.Len()
		},
		gen.SliceOfN(4, gen.IntRange(0, 100)),
		gen.UIntRange(0, 100),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}

// TestProperty_ScheduleCounts checks that shuffling never changes how many
// entries of each kind a schedule holds.
func TestProperty_ScheduleCounts(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("counts equal percentages", prop.ForAll(
		func(a, b int, seed uint64) bool {
			if a > b {
				a, b = b, a
			}
			mix := Mix{Reads: uint(a), Updates: uint(b - a), Upserts: uint(100 - b)}
			s, err := BuildSchedule(mix, rand.New(rand.NewPCG(seed, seed)))
			if err != nil {
				return false
			}
			c := s.Counts()
			return c[OpRead] == a && c[OpUpdate] == b-a && c[OpUpsert] == 100-b && c[OpInsert] == 0
		},
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
