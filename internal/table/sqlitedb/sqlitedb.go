// Package sqlitedb exposes a SQLite database as a byte-keyed table. Outcomes
// come from the number of rows each statement changed, so presence checks and
// writes are a single atomic statement.
package sqlitedb

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS kv (
	k BLOB PRIMARY KEY,
	v BLOB NOT NULL
) WITHOUT ROWID`

// Config holds configuration for a SQLite-backed table.
type Config struct {
	// Path is the database file. Ignored when InMemory is true.
	Path string

	// InMemory keeps the database in memory. It forces a single connection,
	// since every new connection to ":memory:" opens an empty database.
	InMemory bool

	// SyncWrites sets synchronous=FULL instead of NORMAL.
	SyncWrites bool

	// MaxOpenConns caps the connection pool. Values below 1 mean 1.
	MaxOpenConns int
}

// Table is a SQLite database used as a concurrent key-value table.
type Table struct {
	db *sql.DB

	insertStmt *sql.Stmt
	selectStmt *sql.Stmt
	deleteStmt *sql.Stmt
	updateStmt *sql.Stmt
}

func dsn(cfg Config) string {
	sync := "NORMAL"
	if cfg.SyncWrites {
		sync = "FULL"
	}
	if cfg.InMemory {
		return ":memory:?_synchronous=" + sync
	}
	return cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=" + sync
}

// Open opens the database, creates the kv table, and prepares the statements.
func Open(cfg Config) (*Table, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("sqlitedb: path is required for persistent database")
	}
	conns := cfg.MaxOpenConns
	if conns < 1 || cfg.InMemory {
		conns = 1
	}

	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	// An in-memory database lives only as long as its connection.
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitedb: failed to initialize schema: %w", err)
	}

	t := &Table{db: db}
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&t.insertStmt, "INSERT OR IGNORE INTO kv (k, v) VALUES (?, ?)"},
		{&t.selectStmt, "SELECT v FROM kv WHERE k = ?"},
		{&t.deleteStmt, "DELETE FROM kv WHERE k = ?"},
		{&t.updateStmt, "UPDATE kv SET v = ? WHERE k = ?"},
	}
	for _, s := range stmts {
		stmt, err := db.Prepare(s.query)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("sqlitedb: failed to prepare %q: %w", s.query, err)
		}
		*s.dst = stmt
	}
	return t, nil
}

func changed(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Insert stores value under key if key is absent.
func (t *Table) Insert(key, value []byte) (bool, error) {
	return changed(t.insertStmt.Exec(key, value))
}

// Read returns the value stored under key.
func (t *Table) Read(key []byte) ([]byte, bool, error) {
	var v []byte
	err := t.selectStmt.QueryRow(key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Erase removes key if present.
func (t *Table) Erase(key []byte) (bool, error) {
	return changed(t.deleteStmt.Exec(key))
}

// Update replaces the value under key if key is present.
func (t *Table) Update(key, value []byte) (bool, error) {
	return changed(t.updateStmt.Exec(value, key))
}

// Len returns the number of rows in the table.
func (t *Table) Len() (int, error) {
	var n int
	err := t.db.QueryRow("SELECT COUNT(*) FROM kv").Scan(&n)
	return n, err
}

// Close releases the prepared statements and the database.
func (t *Table) Close() error {
	for _, s := range []*sql.Stmt{t.insertStmt, t.selectStmt, t.deleteStmt, t.updateStmt} {
		if s != nil {
			s.Close()
		}
	}
	return t.db.Close()
}
