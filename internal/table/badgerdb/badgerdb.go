// Package badgerdb exposes a BadgerDB instance as a byte-keyed table.
//
// Each operation runs in its own read-write transaction: the presence check
// and the write commit together, so the outcome reported to the caller is
// exactly what the store did. Transactions that lose a conflict are retried.
package badgerdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds how often one operation is retried after
// badger.ErrConflict before the error is returned.
const maxConflictRetries = 16

// Config holds configuration for a BadgerDB-backed table.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps all data in memory.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs for on-disk tables. Zero
	// disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before a value log file is
	// rewritten.
	GCDiscardRatio float64
}

// DefaultConfig returns an on-disk configuration without fsync on commit.
func DefaultConfig() Config {
	return Config{
		GCInterval:     time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration that never touches disk.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Table is a BadgerDB database used as a concurrent key-value table.
type Table struct {
	db     *badger.DB
	stopGC chan struct{}
	gcDone chan struct{}
	logger *slog.Logger
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Table, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	t := &Table{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		t.stopGC = make(chan struct{})
		t.gcDone = make(chan struct{})
		go t.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return t, nil
}

func (t *Table) runGC(interval time.Duration, ratio float64) {
	defer close(t.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing worth collecting.
			if err := t.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && t.logger != nil {
				t.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// update runs fn in a read-write transaction, retrying on conflict. fn
// reports the operation outcome through its return value.
func (t *Table) update(fn func(txn *badger.Txn) (bool, error)) (bool, error) {
	for attempt := 0; ; attempt++ {
		var ok bool
		err := t.db.Update(func(txn *badger.Txn) error {
			var err error
			ok, err = fn(txn)
			return err
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		return ok, err
	}
}

func present(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert stores value under key if key is absent.
func (t *Table) Insert(key, value []byte) (bool, error) {
	return t.update(func(txn *badger.Txn) (bool, error) {
		found, err := present(txn, key)
		if err != nil || found {
			return false, err
		}
		return true, txn.Set(key, value)
	})
}

// Read returns a copy of the value stored under key.
func (t *Table) Read(key []byte) ([]byte, bool, error) {
	var value []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Erase removes key if present.
func (t *Table) Erase(key []byte) (bool, error) {
	return t.update(func(txn *badger.Txn) (bool, error) {
		found, err := present(txn, key)
		if err != nil || !found {
			return false, err
		}
		return true, txn.Delete(key)
	})
}

// Update replaces the value under key if key is present.
func (t *Table) Update(key, value []byte) (bool, error) {
	return t.update(func(txn *badger.Txn) (bool, error) {
		found, err := present(txn, key)
		if err != nil || !found {
			return false, err
		}
		return true, txn.Set(key, value)
	})
}

// Close stops value log GC and closes the database.
func (t *Table) Close() error {
	if t.stopGC != nil {
		close(t.stopGC)
		<-t.gcDone
		t.stopGC = nil
	}
	return t.db.Close()
}
