package config

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis server used for rate limiting and, with
// STORAGE_BACKEND=redis, as the key-value store.  Host and Port take
// precedence over Addr when both are set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Host     string `env:"REDIS_HOST"`
	Port     string `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	TLS      bool   `env:"REDIS_TLS" envDefault:"false"`
}

// Address returns the host:port to dial.
func (r RedisConfig) Address() string {
	if r.Host != "" && r.Port != "" {
		return r.Host + ":" + r.Port
	}
	if r.Addr == "" {
		return "localhost:6379"
	}
	return r.Addr
}

// NewRedisClient dials Redis and pings it with a short timeout.  It returns
// nil when the server is unreachable; callers degrade by disabling the
// features that need it.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Address(),
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
