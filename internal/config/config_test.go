package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Port != "8080" || cfg.Storage.Backend != BackendSQLite {
		t.Fatalf("unexpected defaults: port=%q backend=%q", cfg.Port, cfg.Storage.Backend)
	}
	app := cfg.App()
	if app.Storage.Prefix != "restopos_" || app.Storage.SchemaVersion != "v2" {
		t.Fatalf("unexpected namespace %q %q", app.Storage.Prefix, app.Storage.SchemaVersion)
	}
	if app.Storage.WriteDebounce != 300*time.Millisecond || app.EventDedupWindow != 50*time.Millisecond {
		t.Fatalf("unexpected timings %+v", app)
	}
	if app.Bills.MaxBills != 1000 || app.Bills.MaxArchiveAgeDays != 30 {
		t.Fatalf("unexpected bill limits %+v", app.Bills)
	}
	if app.Storage.Cache.MaxEntries != 50 || app.Storage.Cache.MaxBytes != 5<<20 {
		t.Fatalf("unexpected cache bounds %+v", app.Storage.Cache)
	}
}

func TestParseRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Parse(); err == nil {
		t.Fatal("expected missing JWT_SECRET to fail")
	}
}

func TestParseRejectsUnknownBackend(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_BACKEND", "Cassandra")
	_, err := Parse()
	if err == nil || !strings.Contains(err.Error(), "cassandra") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestParseProdNeedsLongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("APP_ENV", "prod")
	if _, err := Parse(); err == nil {
		t.Fatal("expected short prod secret to fail")
	}
}

func TestRateLimitShorthands(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rl := cfg.RateLimit
	if rl.Capacity != 5 || rl.RefillTokens != 1 || rl.RefillInterval != 2*time.Second {
		t.Fatalf("unexpected bucket %+v", rl)
	}
	if rl.TTL != 10*time.Second {
		t.Fatalf("expected TTL raised to 5 intervals, got %v", rl.TTL)
	}
}

func TestRedisAddress(t *testing.T) {
	cases := []struct {
		cfg  RedisConfig
		want string
	}{
		{RedisConfig{Addr: "cache:6380"}, "cache:6380"},
		{RedisConfig{Addr: "cache:6380", Host: "redis", Port: "6379"}, "redis:6379"},
		{RedisConfig{Host: "redis"}, "localhost:6379"},
	}
	for _, c := range cases {
		if got := c.cfg.Address(); got != c.want {
			t.Errorf("Address(%+v) = %q, want %q", c.cfg, got, c.want)
		}
	}
}
