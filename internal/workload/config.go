package workload

import (
	"fmt"

	kverrors "github.com/arkilian/kvmix/internal/errors"
)

// MaxCapacityExponent bounds the initial capacity so that capacity times a
// percentage cannot overflow uint64.
const MaxCapacityExponent = 48

// Mix holds the operation percentages. They must each be in [0,100] and sum
// to exactly 100.
type Mix struct {
	Reads   uint
	Inserts uint
	Erases  uint
	Updates uint
	Upserts uint
}

// Percent returns the configured percentage for kind.
func (m Mix) Percent(kind OpKind) uint {
	switch kind {
	case OpRead:
		return m.Reads
	case OpInsert:
		return m.Inserts
	case OpErase:
		return m.Erases
	case OpUpdate:
		return m.Updates
	case OpUpsert:
		return m.Upserts
	default:
		return 0
	}
}

// Validate checks the per-kind range and the sum.
func (m Mix) Validate() error {
	var sum uint
	for _, k := range OpKinds {
		p := m.Percent(k)
		if p > 100 {
			return kverrors.NewConfigurationError(kverrors.CodePercentOutOfRange,
				fmt.Sprintf("percentage for `%ss` cannot exceed 100, got %d", k, p)).
				WithDetails(map[string]interface{}{"kind": k.String(), "value": p})
		}
		sum += p
	}
	if sum != 100 {
		return kverrors.NewConfigurationError(kverrors.CodeMixSum,
			fmt.Sprintf("operation mix percentages must sum to 100, got %d", sum)).
			WithDetails(map[string]interface{}{"sum": sum})
	}
	return nil
}

// Config is the immutable description of one run.
type Config struct {
	Mix Mix

	// CapacityExponent sets the initial table capacity to 2^CapacityExponent.
	CapacityExponent uint

	// PrefillPercent is the share of the initial capacity inserted before timing.
	PrefillPercent uint

	// TotalOpsPercent is the number of timed operations as a percentage of the
	// initial capacity. It may exceed 100.
	TotalOpsPercent uint

	// Threads is the number of workers in each phase.
	Threads int
}

// Validate reports the first configuration problem as a ConfigurationError.
func (c Config) Validate() error {
	if err := c.Mix.Validate(); err != nil {
		return err
	}
	if c.PrefillPercent > 100 {
		return kverrors.NewConfigurationError(kverrors.CodePercentOutOfRange,
			fmt.Sprintf("percentage for `prefill` cannot exceed 100, got %d", c.PrefillPercent))
	}
	if c.CapacityExponent > MaxCapacityExponent {
		return kverrors.NewConfigurationError(kverrors.CodeInvalidCapacity,
			fmt.Sprintf("initial capacity exponent must be at most %d, got %d", MaxCapacityExponent, c.CapacityExponent))
	}
	if c.TotalOpsPercent > 1<<(63-MaxCapacityExponent) {
		return kverrors.NewConfigurationError(kverrors.CodePercentOutOfRange,
			fmt.Sprintf("total ops percentage is too large: %d", c.TotalOpsPercent))
	}
	if c.Threads < 1 {
		return kverrors.NewConfigurationError(kverrors.CodeInvalidThreads,
			fmt.Sprintf("thread count must be at least 1, got %d", c.Threads))
	}
	return nil
}

// InitialCapacity returns 2^CapacityExponent.
func (c Config) InitialCapacity() uint64 {
	return uint64(1) << c.CapacityExponent
}

// TotalOps returns the number of timed operations across all threads.
func (c Config) TotalOps() uint64 {
	return c.InitialCapacity() * uint64(c.TotalOpsPercent) / 100
}

// PrefillElems returns the number of elements inserted before timing.
func (c Config) PrefillElems() uint64 {
	return c.InitialCapacity() * uint64(c.PrefillPercent) / 100
}

// Split returns the share of total assigned to thread. Shares are even, and
// the last thread also takes the remainder.
func Split(total uint64, threads, thread int) uint64 {
	n := total / uint64(threads)
	if thread == threads-1 {
		n += total % uint64(threads)
	}
	return n
}
