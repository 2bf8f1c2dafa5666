package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrentCallsShareOneLoad(t *testing.T) {
	g := New[string]()
	release := make(chan struct{})
	var calls int32

	fn := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "tables", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := g.GetOrLoad(context.Background(), "k", fn)
			if err != nil {
				t.Errorf("load: %v", err)
			}
			results[i] = v
		}(i)
	}

	waitFor(t, func() bool { return g.InFlight("k") })
	// Give the other goroutines time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 underlying load, got %d", n)
	}
	for i, v := range results {
		if v != "tables" {
			t.Fatalf("caller %d: expected tables, got %q", i, v)
		}
	}
	if g.InFlight("k") {
		t.Fatal("expected in-flight marker cleared")
	}
}

func TestFailureClearsMarker(t *testing.T) {
	g := New[int]()
	boom := errors.New("boom")
	if _, err := g.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	v, err := g.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("expected fresh load to return 7, got %d, %v", v, err)
	}
}

func TestCallerCancellationDoesNotFailOthers(t *testing.T) {
	g := New[int]()
	release := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		select {
		case <-release:
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := g.GetOrLoad(ctx, "k", fn)
		firstErr <- err
	}()
	waitFor(t, func() bool { return g.InFlight("k") })

	second := make(chan int, 1)
	go func() {
		v, _ := g.GetOrLoad(context.Background(), "k", fn)
		second <- v
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller canceled, got %v", err)
	}
	close(release)
	if v := <-second; v != 1 {
		t.Fatalf("expected second caller to get 1, got %d", v)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
