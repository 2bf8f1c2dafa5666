package cache

import (
	"fmt"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func byteSize(b []byte) int { return len(b) * 2 }

func newTestCache(cfg Config) (*Memory[[]byte], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := New[[]byte](cfg, byteSize)
	m.SetClock(clock.now)
	return m, clock
}

func TestGetSet(t *testing.T) {
	m, _ := newTestCache(Config{})
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	m.Set("a", []byte("hello"))
	got, ok := m.Get("a")
	if !ok || string(got) != "hello" {
		t.Fatalf("expected hello, got %q ok=%v", got, ok)
	}
	if st := m.Stats(); st.Bytes != 10 || st.Entries != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}

	m.Set("a", []byte("hi"))
	if st := m.Stats(); st.Bytes != 4 {
		t.Fatalf("expected replaced entry to be re-accounted, got %d bytes", st.Bytes)
	}
}

func TestGetExpiresLazily(t *testing.T) {
	m, clock := newTestCache(Config{TTL: time.Minute})
	m.Set("a", []byte("x"))
	clock.advance(59 * time.Second)
	if _, ok := m.Get("a"); !ok {
		t.Fatal("expected entry within TTL")
	}
	clock.advance(2 * time.Second)
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected entry past TTL to be gone")
	}
	if m.Len() != 0 {
		t.Fatalf("expected expired entry removed, len=%d", m.Len())
	}
}

func TestEvictionUnderSizePressure(t *testing.T) {
	const maxBytes = 1000
	m, clock := newTestCache(Config{MaxBytes: maxBytes, MaxEntries: 1000})

	// Each value costs 100 bytes; the 11th insert crosses the cap.
	for i := 0; i < 11; i++ {
		m.Set(fmt.Sprintf("k%02d", i), make([]byte, 50))
		clock.advance(time.Second)
	}

	st := m.Stats()
	if st.Bytes > maxBytes {
		t.Fatalf("expected total under %d, got %d", maxBytes, st.Bytes)
	}
	// 30% of 11 rounds down to 3: the three oldest go.
	for i := 0; i < 3; i++ {
		if _, ok := m.Get(fmt.Sprintf("k%02d", i)); ok {
			t.Fatalf("expected k%02d evicted", i)
		}
	}
	for i := 3; i < 11; i++ {
		if _, ok := m.Get(fmt.Sprintf("k%02d", i)); !ok {
			t.Fatalf("expected k%02d retained", i)
		}
	}
	if st.Evictions != 3 {
		t.Fatalf("expected 3 evictions, got %d", st.Evictions)
	}
}

func TestEvictionPrefersExpired(t *testing.T) {
	m, clock := newTestCache(Config{MaxEntries: 3, TTL: time.Minute})
	m.Set("old", []byte("1"))
	clock.advance(2 * time.Minute)
	m.Set("a", []byte("1"))
	m.Set("b", []byte("1"))
	m.Set("c", []byte("1"))

	if _, ok := m.Get("old"); ok {
		t.Fatal("expected expired entry dropped first")
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := m.Get(k); !ok {
			t.Fatalf("expected %s retained after expiry cleanup", k)
		}
	}
}

func TestEvictionByEntryCount(t *testing.T) {
	m, clock := newTestCache(Config{MaxEntries: 10})
	for i := 0; i < 25; i++ {
		m.Set(fmt.Sprintf("k%02d", i), []byte("v"))
		clock.advance(time.Millisecond)
	}
	if n := m.Len(); n > 10 {
		t.Fatalf("expected at most 10 entries, got %d", n)
	}
	if _, ok := m.Get("k24"); !ok {
		t.Fatal("expected newest entry retained")
	}
}

func TestClear(t *testing.T) {
	m, _ := newTestCache(Config{})
	m.Set("a", []byte("1"))
	m.Clear()
	if st := m.Stats(); st.Entries != 0 || st.Bytes != 0 {
		t.Fatalf("expected empty cache, got %+v", st)
	}
}
