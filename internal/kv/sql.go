package kv

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the few statements that differ between the SQL engines
// the store runs on.  Placeholder returns the bind marker for the n-th
// (1-based) argument.
type Dialect struct {
	Name        string
	CreateTable string
	Upsert      string
	Placeholder func(n int) string
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

// SQLite is used for the on-device database (modernc.org/sqlite).
var SQLite = Dialect{
	Name: "sqlite",
	CreateTable: `CREATE TABLE IF NOT EXISTS kv_store (
    k TEXT PRIMARY KEY,
    v TEXT NOT NULL,
    updated_at INTEGER NOT NULL
)`,
	Upsert: `INSERT INTO kv_store (k, v, updated_at) VALUES (?, ?, ?)
ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`,
	Placeholder: questionMark,
}

// MySQL targets go-sql-driver/mysql.  The key column is limited to 191
// characters so the primary key fits utf8mb4 index limits.
var MySQL = Dialect{
	Name: "mysql",
	CreateTable: `CREATE TABLE IF NOT EXISTS kv_store (
    k VARCHAR(191) NOT NULL PRIMARY KEY,
    v LONGTEXT NOT NULL,
    updated_at BIGINT NOT NULL
) DEFAULT CHARSET=utf8mb4`,
	Upsert: `INSERT INTO kv_store (k, v, updated_at) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = VALUES(updated_at)`,
	Placeholder: questionMark,
}

// Postgres targets the pgx stdlib driver.
var Postgres = Dialect{
	Name: "postgres",
	CreateTable: `CREATE TABLE IF NOT EXISTS kv_store (
    k TEXT PRIMARY KEY,
    v TEXT NOT NULL,
    updated_at BIGINT NOT NULL
)`,
	Upsert: `INSERT INTO kv_store (k, v, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = EXCLUDED.updated_at`,
	Placeholder: dollar,
}

// SQLStore persists items in a single kv_store table.  MultiSet and
// MultiRemove run inside one transaction, which is the closest any backend
// gets to an atomic batch.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps db and makes sure the kv_store table exists.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if _, err := db.ExecContext(ctx, dialect.CreateTable); err != nil {
		return nil, fmt.Errorf("ensure kv_store table (%s): %w", dialect.Name, err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// GetItem returns the value stored under key and whether it exists.
func (s *SQLStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	q := "SELECT v FROM kv_store WHERE k = " + s.dialect.Placeholder(1)
	var v string
	err := s.db.QueryRowContext(ctx, q, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, true, nil
}

// SetItem upserts key.
func (s *SQLStore) SetItem(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Upsert, key, value, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key.  A missing key is not an error.
func (s *SQLStore) RemoveItem(ctx context.Context, key string) error {
	q := "DELETE FROM kv_store WHERE k = " + s.dialect.Placeholder(1)
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// MultiSet upserts every pair in one transaction.
func (s *SQLStore) MultiSet(ctx context.Context, pairs []Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin multi set: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.dialect.Upsert)
	if err != nil {
		return fmt.Errorf("prepare multi set: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	for _, p := range pairs {
		if _, err := stmt.ExecContext(ctx, p.Key, p.Value, now); err != nil {
			return fmt.Errorf("multi set %q: %w", p.Key, err)
		}
	}
	return tx.Commit()
}

// MultiRemove deletes keys in one transaction.
func (s *SQLStore) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		marks[i] = s.dialect.Placeholder(i + 1)
		args[i] = k
	}
	q := "DELETE FROM kv_store WHERE k IN (" + strings.Join(marks, ", ") + ")"
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("multi remove: %w", err)
	}
	return nil
}

// GetAllKeys returns every stored key, sorted.
func (s *SQLStore) GetAllKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT k FROM kv_store ORDER BY k")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the underlying handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
