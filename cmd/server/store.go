package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/config"
	"github.com/iliyamo/restaurant-pos/internal/database"
	"github.com/iliyamo/restaurant-pos/internal/kv"
)

// openStore connects the key-value backend selected by STORAGE_BACKEND.
// The returned closer releases the underlying connection.
func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client, log *zap.SugaredLogger) (kv.Store, func() error, error) {
	s := cfg.Storage
	noop := func() error { return nil }

	switch s.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		return kv.NewMemoryStore(), noop, nil

	case config.BackendSQLite:
		db, err := database.OpenSQLite(s.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		st, err := kv.NewSQLStore(ctx, db, kv.SQLite)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Infow("storage ready", "backend", s.Backend, "path", s.SQLitePath)
		return st, st.Close, nil

	case config.BackendMySQL:
		db, err := database.OpenMySQL(s.DBUser, s.DBPass, s.DBHost, s.DBPort, s.DBName)
		if err != nil {
			return nil, nil, fmt.Errorf("mysql: %w", err)
		}
		st, err := kv.NewSQLStore(ctx, db, kv.MySQL)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Infow("storage ready", "backend", s.Backend, "host", s.DBHost, "db", s.DBName)
		return st, st.Close, nil

	case config.BackendPostgres:
		db, err := database.OpenPostgres(ctx, s.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		st, err := kv.NewSQLStore(ctx, db, kv.Postgres)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Infow("storage ready", "backend", s.Backend)
		return st, st.Close, nil

	case config.BackendRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("redis backend selected but %s is unreachable", cfg.Redis.Address())
		}
		st, err := kv.NewRedisStore(rdb, s.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		log.Infow("storage ready", "backend", s.Backend, "addr", cfg.Redis.Address())
		return st, noop, nil

	case config.BackendMongo:
		client, db, err := database.OpenMongo(ctx, s.MongoURI, s.MongoDatabase, s.MongoTimeout)
		if err != nil {
			return nil, nil, err
		}
		st, err := kv.NewMongoStore(db, s.MongoTimeout)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		log.Infow("storage ready", "backend", s.Backend, "db", s.MongoDatabase)
		return st, func() error { return client.Disconnect(context.Background()) }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", s.Backend)
}
