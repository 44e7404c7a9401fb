package auth

import (
	"context"
	"errors"
	"math"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"coinbridge/internal/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

var cryptoTradeEpoch = time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTickSourceDerivesFromEpoch(t *testing.T) {
	clock := &fakeClock{now: cryptoTradeEpoch.Add(10*time.Second + 100*time.Millisecond)}
	src := &TickSource{Epoch: cryptoTradeEpoch, Tick: 250 * time.Millisecond, Now: clock.Now, Sleep: clock.Sleep}

	n, err := src.Next(context.Background(), 0)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if n != 40 {
		t.Fatalf("Next() = %d, want 40", n)
	}
}

func TestTickSourceWaitsForNextTickInsteadOfRepeating(t *testing.T) {
	clock := &fakeClock{now: cryptoTradeEpoch.Add(time.Second)}
	src := &TickSource{Epoch: cryptoTradeEpoch, Tick: 250 * time.Millisecond, Now: clock.Now, Sleep: clock.Sleep}
	p := NewProvider()
	p.Register("cryptotrade:k", src)

	first, err := p.NextNonce(context.Background(), "cryptotrade:k")
	if err != nil {
		t.Fatalf("NextNonce() error = %v", err)
	}
	second, err := p.NextNonce(context.Background(), "cryptotrade:k")
	if err != nil {
		t.Fatalf("NextNonce() error = %v", err)
	}
	if second != first+1 {
		t.Fatalf("second nonce = %d, want %d", second, first+1)
	}
	if got := clock.Now().Sub(cryptoTradeEpoch); got != 1250*time.Millisecond {
		t.Fatalf("clock advanced to %s, want 1.25s", got)
	}
}

func TestTickSourceOverflowFailsFast(t *testing.T) {
	// int32 ticks of 250ms run out in January 2030.
	clock := &fakeClock{now: cryptoTradeEpoch.Add(time.Duration(math.MaxInt32+1) * 250 * time.Millisecond)}
	src := &TickSource{Epoch: cryptoTradeEpoch, Tick: 250 * time.Millisecond, Now: clock.Now, Sleep: clock.Sleep}

	_, err := src.Next(context.Background(), 0)
	if !errors.Is(err, core.ErrNonceExhausted) {
		t.Fatalf("Next() error = %v, want ErrNonceExhausted", err)
	}
}

func TestTickSourceRejectsClockBeforeEpoch(t *testing.T) {
	clock := &fakeClock{now: cryptoTradeEpoch.Add(-time.Hour)}
	src := &TickSource{Epoch: cryptoTradeEpoch, Tick: 250 * time.Millisecond, Now: clock.Now}

	if _, err := src.Next(context.Background(), 0); !errors.Is(err, core.ErrNonceExhausted) {
		t.Fatalf("Next() error = %v, want ErrNonceExhausted", err)
	}
}

func TestTickSourceWaitHonorsContext(t *testing.T) {
	clock := &fakeClock{now: cryptoTradeEpoch.Add(time.Second)}
	src := &TickSource{Epoch: cryptoTradeEpoch, Tick: time.Hour, Now: clock.Now}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := src.Next(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestProviderSequentialStrictlyIncreasing(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	p := NewProvider()
	p.Register("mtgox:k", &CounterSource{Unit: time.Millisecond, Now: clock.Now})

	var last int64
	for i := 0; i < 1000; i++ {
		n, err := p.NextNonce(context.Background(), "mtgox:k")
		if err != nil {
			t.Fatalf("NextNonce() error = %v", err)
		}
		if n <= last {
			t.Fatalf("nonce %d after %d is not increasing", n, last)
		}
		last = n
	}
}

func TestProviderConcurrentNoncesAreDistinct(t *testing.T) {
	clock := &fakeClock{now: cryptoTradeEpoch.Add(time.Minute)}
	p := NewProvider()
	p.Register("tick", &TickSource{Epoch: cryptoTradeEpoch, Tick: 250 * time.Millisecond, Now: clock.Now, Sleep: clock.Sleep})
	p.Register("counter", &CounterSource{Now: clock.Now})

	for _, scope := range []string{"tick", "counter"} {
		const workers = 16
		const perWorker = 50
		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			all []int64
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var prev int64
				for i := 0; i < perWorker; i++ {
					n, err := p.NextNonce(context.Background(), scope)
					if err != nil {
						t.Errorf("NextNonce(%s) error = %v", scope, err)
						return
					}
					if n <= prev {
						t.Errorf("NextNonce(%s) = %d after %d within one caller", scope, n, prev)
					}
					prev = n
					mu.Lock()
					all = append(all, n)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if len(all) != workers*perWorker {
			t.Fatalf("%s issued %d nonces, want %d", scope, len(all), workers*perWorker)
		}
		sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
		for i := 1; i < len(all); i++ {
			if all[i] == all[i-1] {
				t.Fatalf("%s issued duplicate nonce %d", scope, all[i])
			}
		}
	}
}

func TestProviderUnknownScope(t *testing.T) {
	p := NewProvider()
	if _, err := p.NextNonce(context.Background(), "missing"); !errors.Is(err, ErrUnknownScope) {
		t.Fatalf("NextNonce() error = %v, want ErrUnknownScope", err)
	}
}

type stuckSource struct{ v int64 }

func (s stuckSource) Next(context.Context, int64) (int64, error) { return s.v, nil }

func TestProviderRejectsNonIncreasingSource(t *testing.T) {
	p := NewProvider()
	p.Register("s", stuckSource{v: 5})
	if _, err := p.NextNonce(context.Background(), "s"); err != nil {
		t.Fatalf("first NextNonce() error = %v", err)
	}
	if _, err := p.NextNonce(context.Background(), "s"); err == nil {
		t.Fatalf("second NextNonce() error = nil, want error for repeated value")
	}
}

type memMarks struct {
	mu     sync.Mutex
	marks  map[string]int64
	blocks int
}

func (m *memMarks) ReserveBlock(_ context.Context, scope string, atLeast, size int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marks == nil {
		m.marks = make(map[string]int64)
	}
	start := m.marks[scope] + 1
	if atLeast > start {
		start = atLeast
	}
	m.marks[scope] = start + size - 1
	m.blocks++
	return start, nil
}

func TestHighWaterSourceResumesAboveReservedBlock(t *testing.T) {
	marks := &memMarks{}
	p := NewProvider()
	p.Register("s", &HighWaterSource{Store: marks, Scope: "s", Block: 10})

	var last int64
	for i := 0; i < 3; i++ {
		n, err := p.NextNonce(context.Background(), "s")
		if err != nil {
			t.Fatalf("NextNonce() error = %v", err)
		}
		last = n
	}
	if last != 3 {
		t.Fatalf("last nonce = %d, want 3", last)
	}
	if marks.blocks != 1 || marks.marks["s"] != 10 {
		t.Fatalf("blocks=%d mark=%d, want one block up to 10", marks.blocks, marks.marks["s"])
	}

	restarted := NewProvider()
	restarted.Register("s", &HighWaterSource{Store: marks, Scope: "s", Block: 10})
	n, err := restarted.NextNonce(context.Background(), "s")
	if err != nil {
		t.Fatalf("NextNonce(after restart) error = %v", err)
	}
	if n != 11 {
		t.Fatalf("NextNonce(after restart) = %d, want 11", n)
	}
	if marks.marks["s"] != 20 {
		t.Fatalf("mark after restart = %d, want 20", marks.marks["s"])
	}
}

func TestHighWaterSourcesSharingStoreNeverCollide(t *testing.T) {
	marks := &memMarks{marks: map[string]int64{"s": 100}}
	a := NewProvider()
	a.Register("s", &HighWaterSource{Store: marks, Scope: "s", Block: 10})
	b := NewProvider()
	b.Register("s", &HighWaterSource{Store: marks, Scope: "s", Block: 10})
	ctx := context.Background()

	seen := make(map[int64]string)
	issue := func(name string, p *Provider) {
		t.Helper()
		n, err := p.NextNonce(ctx, "s")
		if err != nil {
			t.Fatalf("%s NextNonce() error = %v", name, err)
		}
		if n <= 100 {
			t.Fatalf("%s NextNonce() = %d, want above stored mark 100", name, n)
		}
		if other, dup := seen[n]; dup {
			t.Fatalf("nonce %d issued by %s and %s", n, other, name)
		}
		seen[n] = name
	}
	issue("a", a)
	issue("b", b)
	for i := 0; i < 10; i++ {
		issue("a", a)
	}
	issue("b", b)
	if marks.marks["s"] != 130 {
		t.Fatalf("mark = %d, want 130", marks.marks["s"])
	}
}

func TestHighWaterSourceHonorsFloor(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(5000)}
	marks := &memMarks{}
	src := &HighWaterSource{Store: marks, Scope: "s", Block: 100, Floor: &CounterSource{Now: clock.Now}}

	n, err := src.Next(context.Background(), 0)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if n != 5000 {
		t.Fatalf("Next() = %d, want 5000", n)
	}
	if marks.marks["s"] != 5099 {
		t.Fatalf("mark = %d, want 5099", marks.marks["s"])
	}
}

func TestScopeHidesAPIKey(t *testing.T) {
	s := Scope("BitStamp", "secret-api-key")
	if s == "" || s[:9] != "bitstamp:" {
		t.Fatalf("Scope() = %q, want bitstamp: prefix", s)
	}
	if Scope("bitstamp", "secret-api-key") != s {
		t.Fatalf("Scope() not deterministic")
	}
	if Scope("bitstamp", "other") == s {
		t.Fatalf("Scope() collides for different keys")
	}
}

func TestRedisCounterMonotonic(t *testing.T) {
	addr := os.Getenv("COINBRIDGE_TEST_REDIS")
	if addr == "" {
		t.Skip("COINBRIDGE_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	key := "coinbridge:test:nonce:" + time.Now().Format("150405.000000")
	defer client.Del(context.Background(), key)

	p := NewProvider()
	p.Register("r", &RedisCounter{Client: client, Key: key, Seed: func() int64 { return 100 }})
	var last int64
	for i := 0; i < 5; i++ {
		n, err := p.NextNonce(context.Background(), "r")
		if err != nil {
			t.Fatalf("NextNonce() error = %v", err)
		}
		if n <= last || n <= 100 {
			t.Fatalf("NextNonce() = %d after %d", n, last)
		}
		last = n
	}
}
