// Package database opens the SQL and document databases the key-value
// store can run on.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	_ "modernc.org/sqlite"
)

// OpenMySQL connects to MySQL and verifies the connection.
func OpenMySQL(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (creating if needed) the on-device database at path in
// WAL mode.  A single connection serialises writers.
func OpenSQLite(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	clean := filepath.Clean(path)
	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := clean + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// OpenPostgres connects through the pgx stdlib driver, retrying while the
// server comes up or until ctx is done.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	const (
		maxRetries = 10
		retryDelay = 2 * time.Second
		pingTTL    = 5 * time.Second
	)

	var err error
	for i := 1; i <= maxRetries; i++ {
		var db *sql.DB
		db, err = sql.Open("pgx", dsn)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, pingTTL)
			err = db.PingContext(pctx)
			cancel()
			if err == nil {
				db.SetMaxOpenConns(25)
				db.SetConnMaxLifetime(30 * time.Minute)
				return db, nil
			}
			_ = db.Close()
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres connect canceled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", maxRetries, err)
}

// OpenMongo connects to MongoDB, pings the primary and returns the client
// with the named database.  Disconnect the client on shutdown.
func OpenMongo(ctx context.Context, uri, database string, timeout time.Duration) (*mongo.Client, *mongo.Database, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, client.Database(database), nil
}
