package safety

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type alertSpy struct {
	mu     sync.Mutex
	events []string
}

func (a *alertSpy) Important(event string, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func newTestBreaker(maxFailures int, cooldown time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(true, maxFailures, cooldown)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterConsecutiveAuthFailures(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	spy := &alertSpy{}
	b.SetAlerter(spy)
	rejected := errors.New("invalid nonce")

	if err := b.Record("btce", rejected); err != nil {
		t.Fatalf("Record(first failure) error = %v, want nil", err)
	}
	if err := b.Record("btce", rejected); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Record(second failure) error = %v, want ErrCircuitOpen", err)
	}
	if err := b.Allow("btce"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() error = %v, want ErrCircuitOpen", err)
	}
	if err := b.Allow("bitstamp"); err != nil {
		t.Fatalf("Allow(other exchange) error = %v, want nil", err)
	}
	if len(spy.events) != 1 || spy.events[0] != "auth_circuit_open" {
		t.Fatalf("alerts = %v, want [auth_circuit_open]", spy.events)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	rejected := errors.New("invalid signature")

	_ = b.Record("bter", rejected)
	_ = b.Record("bter", nil)
	if err := b.Record("bter", rejected); err != nil {
		t.Fatalf("Record() after success error = %v, want nil", err)
	}
	if got := b.State("bter"); got != "closed" {
		t.Fatalf("State() = %q, want closed", got)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	rejected := errors.New("api key revoked")

	if err := b.Record("mtgox", rejected); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Record() error = %v, want ErrCircuitOpen", err)
	}
	*now = now.Add(61 * time.Second)
	if err := b.Allow("mtgox"); err != nil {
		t.Fatalf("Allow(after cooldown) error = %v, want nil", err)
	}
	if got := b.State("mtgox"); got != "half_open" {
		t.Fatalf("State() = %q, want half_open", got)
	}
	if err := b.Record("mtgox", rejected); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Record(half-open failure) error = %v, want ErrCircuitOpen", err)
	}

	*now = now.Add(61 * time.Second)
	if err := b.Allow("mtgox"); err != nil {
		t.Fatalf("Allow(second cooldown) error = %v, want nil", err)
	}
	if err := b.Record("mtgox", nil); err != nil {
		t.Fatalf("Record(success probe) error = %v", err)
	}
	if got := b.State("mtgox"); got != "closed" {
		t.Fatalf("State() = %q, want closed", got)
	}
}

func TestBreakerHalfOpenAdmitsSingleCaller(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	_ = b.Record("bitstamp", errors.New("invalid signature"))
	*now = now.Add(61 * time.Second)

	var allowed, refused int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Allow("bitstamp")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				allowed++
			case errors.Is(err, ErrCircuitOpen):
				refused++
			default:
				t.Errorf("Allow() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if allowed != 1 || refused != 7 {
		t.Fatalf("allowed=%d refused=%d, want exactly one admitted", allowed, refused)
	}

	// The admitted call never reported back; another is admitted after a further cooldown.
	*now = now.Add(30 * time.Second)
	if err := b.Allow("bitstamp"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow(trial pending) error = %v, want ErrCircuitOpen", err)
	}
	*now = now.Add(31 * time.Second)
	if err := b.Allow("bitstamp"); err != nil {
		t.Fatalf("Allow(stale trial) error = %v, want nil", err)
	}
	if err := b.Record("bitstamp", nil); err != nil {
		t.Fatalf("Record(success trial) error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := b.Allow("bitstamp"); err != nil {
			t.Fatalf("Allow(after recovery) error = %v", err)
		}
	}
}

func TestBreakerDisabledNeverOpens(t *testing.T) {
	b := NewBreaker(false, 1, time.Minute)
	if err := b.Record("btce", errors.New("x")); err != nil {
		t.Fatalf("Record() error = %v, want nil", err)
	}
	if err := b.Allow("btce"); err != nil {
		t.Fatalf("Allow() error = %v, want nil", err)
	}
	var nilBreaker *Breaker
	if err := nilBreaker.Allow("btce"); err != nil {
		t.Fatalf("nil Allow() error = %v", err)
	}
}
