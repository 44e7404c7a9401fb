package auth

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"coinbridge/internal/core"
)

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TickSource derives the nonce from fixed-width ticks elapsed since Epoch, allowing one
// request per tick. It is inherently limited: a restart inside the tick of the last issued
// nonce reissues that tick, which nothing here can detect, and the counter overflows Max at
// Epoch+Max*Tick. Overflow and a clock before Epoch fail with core.ErrNonceExhausted
// instead of emitting a wrapped or negative value.
type TickSource struct {
	Epoch time.Time
	Tick  time.Duration
	// Max is the largest nonce the exchange accepts; zero means math.MaxInt32.
	Max   int64
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (s *TickSource) Next(ctx context.Context, last int64) (int64, error) {
	if s.Tick <= 0 {
		return 0, fmt.Errorf("%w: tick must be > 0", core.ErrNonceExhausted)
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	max := s.Max
	if max <= 0 {
		max = math.MaxInt32
	}
	for {
		t := now()
		elapsed := t.Sub(s.Epoch)
		if elapsed < 0 {
			return 0, fmt.Errorf("%w: clock %s precedes nonce epoch %s", core.ErrNonceExhausted, t.UTC().Format(time.RFC3339), s.Epoch.UTC().Format(time.RFC3339))
		}
		n := int64(elapsed / s.Tick)
		if n > max {
			return 0, fmt.Errorf("%w: tick nonce %d exceeds limit %d (%s ticks since %s); rotate credentials or change nonce strategy",
				core.ErrNonceExhausted, n, max, s.Tick, s.Epoch.UTC().Format(time.RFC3339))
		}
		if n > last {
			return n, nil
		}
		if last >= max {
			return 0, fmt.Errorf("%w: tick nonce limit %d reached", core.ErrNonceExhausted, max)
		}
		wait := s.Epoch.Add(time.Duration(last+1) * s.Tick).Sub(t)
		log.Printf("level=INFO event=nonce_wait last=%d wait_ms=%d", last, wait.Milliseconds())
		if err := sleep(ctx, wait); err != nil {
			return 0, err
		}
	}
}

// CounterSource issues max(last+1, clock/Unit). Seeding from the clock keeps a restarted
// process above earlier values as long as the average rate stays below one per Unit.
type CounterSource struct {
	Unit time.Duration
	Max  int64
	Now  func() time.Time
}

func (s *CounterSource) Next(_ context.Context, last int64) (int64, error) {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	unit := s.Unit
	if unit <= 0 {
		unit = time.Millisecond
	}
	n := now().UnixNano() / int64(unit)
	if n <= last {
		n = last + 1
	}
	if s.Max > 0 && n > s.Max {
		return 0, fmt.Errorf("%w: counter nonce %d exceeds limit %d", core.ErrNonceExhausted, n, s.Max)
	}
	return n, nil
}

// MarkStore persists the highest nonce reserved for a scope.
type MarkStore interface {
	// ReserveBlock atomically raises the mark for scope to max(mark+1, atLeast)+size-1 and
	// returns the first value of the block, so concurrent reservations never overlap.
	ReserveBlock(ctx context.Context, scope string, atLeast, size int64) (int64, error)
}

// HighWaterSource issues nonces from blocks reserved in a MarkStore. A block is recorded
// before any value in it is used, so a restart resumes above every value that could have
// been sent. Processes sharing a store get disjoint blocks; with Block 1 their nonces are
// also ordered across processes.
type HighWaterSource struct {
	Store MarkStore
	Scope string
	Block int64
	// Floor is an optional lower bound, e.g. a CounterSource, consulted on every call.
	Floor Source

	reserved int64
}

func (s *HighWaterSource) Next(ctx context.Context, last int64) (int64, error) {
	n := last + 1
	if s.Floor != nil {
		f, err := s.Floor.Next(ctx, last)
		if err != nil {
			return 0, err
		}
		if f > n {
			n = f
		}
	}
	if n > s.reserved {
		block := s.Block
		if block < 1 {
			block = 1
		}
		start, err := s.Store.ReserveBlock(ctx, s.Scope, n, block)
		if err != nil {
			return 0, fmt.Errorf("reserve nonce block %s: %w", s.Scope, err)
		}
		if start < n {
			return 0, fmt.Errorf("reserve nonce block %s: store returned %d below %d", s.Scope, start, n)
		}
		n = start
		s.reserved = start + block - 1
	}
	return n, nil
}
