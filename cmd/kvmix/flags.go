package main

import (
	"github.com/spf13/cobra"

	"github.com/arkilian/kvmix/internal/config"
)

// overrides copies one flag's value from the flag-bound config into the
// loaded config. Only flags the user set are applied.
var overrides = map[string]func(dst, src *config.Config){
	"reads":            func(d, s *config.Config) { d.Workload.Reads = s.Workload.Reads },
	"inserts":          func(d, s *config.Config) { d.Workload.Inserts = s.Workload.Inserts },
	"erases":           func(d, s *config.Config) { d.Workload.Erases = s.Workload.Erases },
	"updates":          func(d, s *config.Config) { d.Workload.Updates = s.Workload.Updates },
	"upserts":          func(d, s *config.Config) { d.Workload.Upserts = s.Workload.Upserts },
	"initial-capacity": func(d, s *config.Config) { d.Workload.InitialCapacity = s.Workload.InitialCapacity },
	"prefill":          func(d, s *config.Config) { d.Workload.Prefill = s.Workload.Prefill },
	"total-ops":        func(d, s *config.Config) { d.Workload.TotalOps = s.Workload.TotalOps },
	"num-threads":      func(d, s *config.Config) { d.Workload.Threads = s.Workload.Threads },
	"seed":             func(d, s *config.Config) { d.Workload.Seed = s.Workload.Seed },

	"table":          func(d, s *config.Config) { d.Table.Kind = s.Table.Kind },
	"key-type":       func(d, s *config.Config) { d.Table.KeyType = s.Table.KeyType },
	"value-size":     func(d, s *config.Config) { d.Table.ValueSize = s.Table.ValueSize },
	"shards":         func(d, s *config.Config) { d.Table.Shards = s.Table.Shards },
	"path":           func(d, s *config.Config) { d.Table.Path = s.Table.Path },
	"in-memory":      func(d, s *config.Config) { d.Table.InMemory = s.Table.InMemory },
	"sync-writes":    func(d, s *config.Config) { d.Table.SyncWrites = s.Table.SyncWrites },
	"max-open-conns": func(d, s *config.Config) { d.Table.MaxOpenConns = s.Table.MaxOpenConns },
	"remote-addr":    func(d, s *config.Config) { d.Table.RemoteAddr = s.Table.RemoteAddr },
	"call-timeout":   func(d, s *config.Config) { d.Table.CallTimeout = s.Table.CallTimeout },

	"format":           func(d, s *config.Config) { d.Report.Format = s.Report.Format },
	"compress":         func(d, s *config.Config) { d.Report.Compress = s.Report.Compress },
	"storage":          func(d, s *config.Config) { d.Report.Storage.Type = s.Report.Storage.Type },
	"storage-path":     func(d, s *config.Config) { d.Report.Storage.Path = s.Report.Storage.Path },
	"storage-prefix":   func(d, s *config.Config) { d.Report.Storage.Prefix = s.Report.Storage.Prefix },
	"s3-bucket":        func(d, s *config.Config) { d.Report.Storage.S3.Bucket = s.Report.Storage.S3.Bucket },
	"s3-region":        func(d, s *config.Config) { d.Report.Storage.S3.Region = s.Report.Storage.S3.Region },
	"s3-endpoint":      func(d, s *config.Config) { d.Report.Storage.S3.Endpoint = s.Report.Storage.S3.Endpoint },
	"metrics-textfile": func(d, s *config.Config) { d.Metrics.Textfile = s.Metrics.Textfile },

	"grpc-addr": func(d, s *config.Config) { d.Serve.GRPCAddr = s.Serve.GRPCAddr },
	"http-addr": func(d, s *config.Config) { d.Serve.HTTPAddr = s.Serve.HTTPAddr },
}

func applyFlags(cmd *cobra.Command, dst, src *config.Config) {
	for name, apply := range overrides {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			apply(dst, src)
		}
	}
}

func bindWorkloadFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	w := &c.Workload
	f.UintVar(&w.Reads, "reads", w.Reads, "Percentage of mix that is reads")
	f.UintVar(&w.Inserts, "inserts", w.Inserts, "Percentage of mix that is inserts")
	f.UintVar(&w.Erases, "erases", w.Erases, "Percentage of mix that is erases")
	f.UintVar(&w.Updates, "updates", w.Updates, "Percentage of mix that is updates")
	f.UintVar(&w.Upserts, "upserts", w.Upserts, "Percentage of mix that is upserts")
	f.UintVar(&w.InitialCapacity, "initial-capacity", w.InitialCapacity, "Initial table capacity as a power of two")
	f.UintVar(&w.Prefill, "prefill", w.Prefill, "Percentage of the initial capacity filled before timing")
	f.UintVar(&w.TotalOps, "total-ops", w.TotalOps, "Timed operations as a percentage of the initial capacity")
	f.IntVar(&w.Threads, "num-threads", w.Threads, "Worker goroutines per phase")
	f.Uint64Var(&w.Seed, "seed", w.Seed, "Seed for the schedule shuffle (0 is unseeded)")
}

func bindTableFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	t := &c.Table
	f.StringVar(&t.Kind, "table", t.Kind, "Table under test: shardmap, badger, sqlite, remote")
	f.StringVar(&t.KeyType, "key-type", t.KeyType, "Shardmap key type: uint64, string, bytes")
	f.IntVar(&t.ValueSize, "value-size", t.ValueSize, "Size of string and byte values")
	f.IntVar(&t.Shards, "shards", t.Shards, "Shardmap shard count (0 picks one from GOMAXPROCS)")
	f.StringVar(&t.Path, "path", t.Path, "Badger directory or SQLite file")
	f.BoolVar(&t.InMemory, "in-memory", t.InMemory, "Keep badger or SQLite data in memory")
	f.BoolVar(&t.SyncWrites, "sync-writes", t.SyncWrites, "Sync every commit to disk")
	f.IntVar(&t.MaxOpenConns, "max-open-conns", t.MaxOpenConns, "SQLite connection pool size")
	f.StringVar(&t.RemoteAddr, "remote-addr", t.RemoteAddr, "Address of a kvmix serve instance")
	f.DurationVar(&t.CallTimeout, "call-timeout", t.CallTimeout, "Timeout for each remote table call")
}

func bindReportFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	r := &c.Report
	f.StringVar(&r.Format, "format", r.Format, "Output format: text, json")
	f.BoolVar(&r.Compress, "compress", r.Compress, "Snappy-compress archived reports")
	f.StringVar(&r.Storage.Type, "storage", r.Storage.Type, "Report archive: none, local, s3")
	f.StringVar(&r.Storage.Path, "storage-path", r.Storage.Path, "Directory for local report archive")
	f.StringVar(&r.Storage.Prefix, "storage-prefix", r.Storage.Prefix, "Object prefix for archived reports")
	f.StringVar(&r.Storage.S3.Bucket, "s3-bucket", r.Storage.S3.Bucket, "S3 bucket for archived reports")
	f.StringVar(&r.Storage.S3.Region, "s3-region", r.Storage.S3.Region, "S3 region")
	f.StringVar(&r.Storage.S3.Endpoint, "s3-endpoint", r.Storage.S3.Endpoint, "Custom S3 endpoint (MinIO, LocalStack)")
	f.StringVar(&c.Metrics.Textfile, "metrics-textfile", c.Metrics.Textfile, "Write run metrics in Prometheus text format")
}
