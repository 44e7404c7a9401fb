package safety

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"coinbridge/internal/alert"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type circuitState string

const (
	circuitClosed   circuitState = "closed"
	circuitOpen     circuitState = "open"
	circuitHalfOpen circuitState = "half_open"
)

const defaultCooldown = 5 * time.Minute

type circuit struct {
	state    circuitState
	failures int
	openedAt time.Time
	openErr  error
	// trialAt is when the half-open trial call was let through; zero once its outcome is recorded.
	trialAt time.Time
}

// Breaker stops signed calls to an exchange after repeated authentication rejections, so a
// revoked key or a nonce that fell behind does not keep hammering the exchange. Each
// exchange has its own circuit; after Cooldown one trial call is let through (half open)
// and other callers are refused until its outcome is recorded. A trial whose outcome never
// arrives is replaced after another Cooldown.
type Breaker struct {
	enabled     bool
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
	alerter  alert.Alerter
}

func NewBreaker(enabled bool, maxFailures int, cooldown time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Breaker{
		enabled:     enabled,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		circuits:    make(map[string]*circuit),
	}
}

func (b *Breaker) SetAlerter(alerter alert.Alerter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerter = alerter
}

func (b *Breaker) active() bool {
	return b != nil && b.enabled && b.maxFailures > 0
}

func (b *Breaker) circuitLocked(exchange string) *circuit {
	c, ok := b.circuits[exchange]
	if !ok {
		c = &circuit{state: circuitClosed}
		b.circuits[exchange] = c
	}
	return c
}

// Allow reports whether a signed call to exchange may be attempted.
func (b *Breaker) Allow(exchange string) error {
	if !b.active() {
		return nil
	}
	b.mu.Lock()
	c := b.circuitLocked(exchange)
	now := b.now()
	switch c.state {
	case circuitClosed:
		b.mu.Unlock()
		return nil
	case circuitHalfOpen:
		if now.Sub(c.trialAt) < b.cooldown {
			b.mu.Unlock()
			return fmt.Errorf("%w: %s trial call in flight", ErrCircuitOpen, exchange)
		}
		c.trialAt = now
		b.mu.Unlock()
		log.Printf("level=WARN event=auth_circuit_trial_replaced exchange=%q", exchange)
		return nil
	}
	if now.Sub(c.openedAt) < b.cooldown {
		err := c.openErr
		b.mu.Unlock()
		return err
	}
	c.state = circuitHalfOpen
	c.openErr = nil
	c.trialAt = now
	b.mu.Unlock()
	log.Printf("level=INFO event=auth_circuit_half_open exchange=%q cooldown_sec=%d", exchange, int64(b.cooldown/time.Second))
	return nil
}

// Record feeds the outcome of a signed call: nil for accepted credentials, an
// authentication error for a rejection. It returns ErrCircuitOpen when this call trips it.
func (b *Breaker) Record(exchange string, authErr error) error {
	if !b.active() {
		return nil
	}
	b.mu.Lock()
	c := b.circuitLocked(exchange)
	alerter := b.alerter

	if authErr == nil {
		prev := c.state
		recovered := prev == circuitHalfOpen || (prev == circuitClosed && c.failures > 0)
		if prev != circuitOpen {
			c.state = circuitClosed
			c.failures = 0
			c.openedAt = time.Time{}
			c.trialAt = time.Time{}
		}
		b.mu.Unlock()
		if recovered && prev == circuitHalfOpen {
			log.Printf("level=INFO event=auth_circuit_recovered exchange=%q", exchange)
			if alerter != nil {
				alerter.Important("auth_circuit_recovered", map[string]string{"exchange": exchange})
			}
		}
		return nil
	}

	switch c.state {
	case circuitOpen:
		err := c.openErr
		b.mu.Unlock()
		return err
	case circuitHalfOpen:
		c.failures = b.maxFailures
	default:
		c.failures++
		if c.failures < b.maxFailures {
			b.mu.Unlock()
			return nil
		}
	}
	failures := c.failures
	c.state = circuitOpen
	c.openedAt = b.now()
	c.trialAt = time.Time{}
	c.openErr = fmt.Errorf("%w: %s rejected credentials %d consecutive times, cooldown=%s, last error: %v",
		ErrCircuitOpen, exchange, failures, b.cooldown, authErr)
	openErr := c.openErr
	b.mu.Unlock()

	log.Printf("level=ERROR event=auth_circuit_open exchange=%q consecutive_failures=%d cooldown_sec=%d last_error=%q",
		exchange, failures, int64(b.cooldown/time.Second), authErr.Error())
	if alerter != nil {
		alerter.Important("auth_circuit_open", map[string]string{
			"exchange":             exchange,
			"consecutive_failures": strconv.Itoa(failures),
			"last_error":           authErr.Error(),
		})
	}
	return openErr
}

// State returns the circuit state name for exchange, for diagnostics.
func (b *Breaker) State(exchange string) string {
	if b == nil {
		return string(circuitClosed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[exchange]; ok {
		return string(c.state)
	}
	return string(circuitClosed)
}
