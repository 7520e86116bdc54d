// Package app wires configuration, stores, reporting and metrics into the
// run and serve commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arkilian/kvmix/internal/config"
	kverrors "github.com/arkilian/kvmix/internal/errors"
	"github.com/arkilian/kvmix/internal/observability"
	"github.com/arkilian/kvmix/internal/report"
	"github.com/arkilian/kvmix/internal/storage"
	"github.com/arkilian/kvmix/internal/workload"
)

// OpenStorage returns the report archive described by cfg, or nil when
// archiving is disabled.
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	var (
		store storage.ObjectStorage
		err   error
	)
	switch cfg.Type {
	case config.StorageNone, "":
		return nil, nil
	case config.StorageLocal:
		store, err = storage.NewLocalStorage(cfg.Path)
	case config.StorageS3:
		s3Cfg := storage.DefaultS3Config()
		if cfg.S3.Region != "" {
			s3Cfg.Region = cfg.S3.Region
		}
		s3Cfg.Endpoint = cfg.S3.Endpoint
		s3Cfg.UsePathStyle = cfg.S3.UsePathStyle
		store, err = storage.NewS3Storage(ctx, cfg.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage.WithPrefix(store, cfg.Prefix), nil
}

// Run executes one benchmark run, prints the report to out, then writes the
// metrics textfile and archives the report when configured. A run that
// fails produces no report.
func Run(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*report.Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []workload.Option{workload.WithLogger(logger)}
	if seed := cfg.Workload.Seed; seed != 0 {
		opts = append(opts, workload.WithRand(rand.New(rand.NewPCG(seed, seed))))
	}

	started := time.Now()
	res, info, err := execute(ctx, cfg, opts, logger)
	if err != nil {
		return nil, err
	}

	rep := report.New(res, info, started)
	if err := rep.Write(out, cfg.Report.Format); err != nil {
		return nil, kverrors.NewReportError(kverrors.CodePublishFailed, "failed to print report", err)
	}

	if path := cfg.Metrics.Textfile; path != "" {
		metrics := observability.NewRunMetrics(prometheus.Labels{"table": info.Kind, "key_type": info.KeyType})
		metrics.Record(res)
		if err := metrics.WriteTextfile(path); err != nil {
			return rep, kverrors.NewReportError(kverrors.CodePublishFailed, "failed to write metrics textfile", err)
		}
		logger.Info("metrics written", "path", path)
	}

	store, err := OpenStorage(ctx, cfg.Report.Storage)
	if err != nil {
		return rep, kverrors.NewReportError(kverrors.CodePublishFailed, "failed to open report storage", err)
	}
	if store != nil {
		name, err := report.Publish(ctx, store, rep, cfg.Report.Compress)
		if err != nil {
			return rep, err
		}
		logger.Info("report published", "run_id", rep.RunID, "object", name, "storage", cfg.Report.Storage.Type)
	}
	return rep, nil
}
