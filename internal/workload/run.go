package workload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	kverrors "github.com/arkilian/kvmix/internal/errors"
)

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
	rng    *rand.Rand
}

// WithLogger sets the logger for phase progress. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *runOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRand makes the schedule shuffle reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(o *runOptions) {
		o.rng = rng
	}
}

// Result summarizes a completed run.
type Result struct {
	Config          Config
	Schedule        Schedule
	InitialCapacity uint64
	PrefillElems    uint64
	TotalOps        uint64
	PrefillElapsed  time.Duration

	// Elapsed covers only the mixed phase.
	Elapsed    time.Duration
	Throughput float64

	Stats         Stats
	UpsertInserts uint64
	Threads       []ThreadResult
}

// Run validates cfg, opens the table, prefills it, and then times the mixed
// phase. The first worker to fail stops its siblings at their next check and
// its error is returned. Configuration errors are reported before open is
// called or any goroutine starts.
func Run[K, V any](ctx context.Context, cfg Config, open OpenFunc[K, V], gen Generator[K, V], opts ...Option) (_ *Result, err error) {
	o := runOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if open == nil || gen.Key == nil || gen.Value == nil {
		return nil, kverrors.NewConfigurationError(kverrors.CodeInvalidField,
			"table constructor, key function and value function are required")
	}

	res := &Result{
		Config:          cfg,
		InitialCapacity: cfg.InitialCapacity(),
		PrefillElems:    cfg.PrefillElems(),
		TotalOps:        cfg.TotalOps(),
		Threads:         make([]ThreadResult, cfg.Threads),
	}

	table, err := open(res.InitialCapacity)
	if err != nil {
		return nil, kverrors.NewAdapterError(kverrors.CodeOpenFailed,
			fmt.Sprintf("failed to open table with capacity %d", res.InitialCapacity), err)
	}
	if c, ok := table.(io.Closer); ok {
		defer func() {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = kverrors.NewAdapterError(kverrors.CodeOperationFailed, "failed to close table", cerr)
			}
		}()
	}

	res.Schedule, err = BuildSchedule(cfg.Mix, o.rng)
	if err != nil {
		return nil, err
	}

	workers := make([]*worker[K, V], cfg.Threads)
	for t := range workers {
		workers[t] = &worker[K, V]{thread: t, threads: cfg.Threads, table: table, gen: gen}
	}

	logger.Info("prefill started",
		"elements", res.PrefillElems,
		"threads", cfg.Threads,
		"capacity", res.InitialCapacity)

	prefill := make([]uint64, cfg.Threads)
	start := time.Now()
	err = runPhase(ctx, cfg.Threads, func(ctx context.Context, t int) error {
		prefill[t] = Split(res.PrefillElems, cfg.Threads, t)
		return prefillThread(ctx, workers[t], prefill[t])
	})
	res.PrefillElapsed = time.Since(start)
	if err != nil {
		logger.Error("prefill aborted", "error", err)
		return nil, err
	}
	logger.Info("prefill complete", "elapsed", res.PrefillElapsed)

	start = time.Now()
	err = runPhase(ctx, cfg.Threads, func(ctx context.Context, t int) error {
		tr, err := mixThread(ctx, workers[t], Split(res.TotalOps, cfg.Threads, t), &res.Schedule, prefill[t])
		res.Threads[t] = tr
		return err
	})
	res.Elapsed = time.Since(start)
	if err != nil {
		logger.Error("mixed phase aborted", "error", err)
		return nil, err
	}

	for _, tr := range res.Threads {
		res.Stats.Merge(tr.Stats)
		res.UpsertInserts += tr.UpsertInserts
	}
	if secs := res.Elapsed.Seconds(); secs > 0 {
		res.Throughput = float64(res.TotalOps) / secs
	}

	logger.Info("mixed phase complete",
		"total_ops", res.TotalOps,
		"elapsed", res.Elapsed,
		"throughput", res.Throughput)
	return res, nil
}

// runPhase starts one goroutine per thread and waits for all of them. The
// context passed to fn is canceled as soon as any of them fails.
func runPhase(ctx context.Context, threads int, fn func(ctx context.Context, thread int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for t := 0; t < threads; t++ {
		g.Go(func() error {
			return guard(t, func() error { return fn(gctx, t) })
		})
	}
	return g.Wait()
}

// guard converts a panic raised by the store into an internal error.
func guard(thread int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kverrors.NewInternalError(fmt.Sprintf("thread %d panicked", thread), fmt.Errorf("%v", r))
		}
	}()
	return fn()
}
