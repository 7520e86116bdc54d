package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arkilian/kvmix/internal/config"
	kverrors "github.com/arkilian/kvmix/internal/errors"
	"github.com/arkilian/kvmix/internal/keygen"
	"github.com/arkilian/kvmix/internal/report"
	"github.com/arkilian/kvmix/internal/table/badgerdb"
	"github.com/arkilian/kvmix/internal/table/remote"
	"github.com/arkilian/kvmix/internal/table/shardmap"
	"github.com/arkilian/kvmix/internal/table/sqlitedb"
	"github.com/arkilian/kvmix/internal/workload"
)

// ByteTable is a table keyed and valued by byte slices.
type ByteTable = workload.Table[[]byte, []byte]

// asByteTable keeps a failed constructor from yielding a non-nil interface
// around a nil pointer.
func asByteTable[T ByteTable](t T, err error) (ByteTable, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}

// openByteTable opens the configured byte-keyed store. Remote tables are
// dialed and health-checked.
func openByteTable(ctx context.Context, cfg config.TableConfig, capacity uint64, logger *slog.Logger) (ByteTable, error) {
	switch cfg.Kind {
	case config.TableShardMap:
		return shardmap.NewBytes(capacity, cfg.Shards), nil

	case config.TableBadger:
		bcfg := badgerdb.DefaultConfig()
		bcfg.Path = cfg.Path
		bcfg.InMemory = cfg.InMemory
		bcfg.SyncWrites = cfg.SyncWrites
		bcfg.Logger = logger.With("component", "badger")
		return asByteTable(badgerdb.Open(bcfg))

	case config.TableSQLite:
		return asByteTable(sqlitedb.Open(sqlitedb.Config{
			Path:         cfg.Path,
			InMemory:     cfg.InMemory,
			SyncWrites:   cfg.SyncWrites,
			MaxOpenConns: cfg.MaxOpenConns,
		}))

	case config.TableRemote:
		client, err := remote.Dial(cfg.RemoteAddr, cfg.CallTimeout)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(cfg))
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil

	default:
		return nil, kverrors.NewConfigurationError(kverrors.CodeInvalidField,
			fmt.Sprintf("unknown table kind %q", cfg.Kind))
	}
}

func pingTimeout(cfg config.TableConfig) time.Duration {
	if cfg.CallTimeout > 0 {
		return cfg.CallTimeout
	}
	return remote.DefaultCallTimeout
}

// execute runs the workload against the configured table and describes the
// table for the report.
func execute(ctx context.Context, cfg *config.Config, opts []workload.Option, logger *slog.Logger) (*workload.Result, report.TableInfo, error) {
	wcfg := cfg.RunConfig()
	tc := cfg.Table
	info := report.TableInfo{Kind: tc.Kind, KeyType: string(keygen.KeyBytes), ValueType: fmt.Sprintf("bytes[%d]", tc.ValueSize)}

	if tc.Kind == config.TableShardMap {
		info.KeyType = tc.KeyType
		switch keygen.KeyType(tc.KeyType) {
		case keygen.KeyUint64:
			info.ValueType = "uint64"
			open := func(capacity uint64) (workload.Table[uint64, uint64], error) {
				return shardmap.New[uint64, uint64](capacity, tc.Shards, shardmap.HashUint64), nil
			}
			res, err := workload.Run(ctx, wcfg, open, keygen.Uint64Keys(), opts...)
			return res, info, err

		case keygen.KeyString:
			info.ValueType = fmt.Sprintf("string[%d]", tc.ValueSize)
			open := func(capacity uint64) (workload.Table[string, string], error) {
				return shardmap.New[string, string](capacity, tc.Shards, shardmap.HashString), nil
			}
			res, err := workload.Run(ctx, wcfg, open, keygen.StringKeys(tc.ValueSize), opts...)
			return res, info, err
		}
	}

	open := func(capacity uint64) (ByteTable, error) {
		return openByteTable(ctx, tc, capacity, logger)
	}
	res, err := workload.Run(ctx, wcfg, open, keygen.BytesKeys(tc.ValueSize), opts...)
	return res, info, err
}
