package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Source produces nonce candidates for one credential scope. The Provider calls a Source
// under that scope's lock and passes the last value it issued, so sources need no locking
// of their own.
type Source interface {
	Next(ctx context.Context, last int64) (int64, error)
}

var ErrUnknownScope = errors.New("nonce scope not registered")

type scopeState struct {
	mu     sync.Mutex
	source Source
	last   int64
}

// Provider issues strictly increasing nonces per credential scope. It is the only shared
// mutable state of the exchange layer.
type Provider struct {
	mu     sync.RWMutex
	scopes map[string]*scopeState
}

func NewProvider() *Provider {
	return &Provider{scopes: make(map[string]*scopeState)}
}

// Register binds a source to scope. Registering an existing scope keeps the first source
// so a running counter is never reset.
func (p *Provider) Register(scope string, src Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.scopes[scope]; ok {
		return
	}
	p.scopes[scope] = &scopeState{source: src}
}

func (p *Provider) NextNonce(ctx context.Context, scope string) (int64, error) {
	p.mu.RLock()
	st, ok := p.scopes[scope]
	p.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := st.source.Next(ctx, st.last)
	if err != nil {
		return 0, err
	}
	if n <= st.last {
		return 0, fmt.Errorf("nonce source for %s returned %d after %d", scope, n, st.last)
	}
	st.last = n
	return n, nil
}

// Scope names a (exchange, credential) pair without exposing the api key.
func Scope(exchange, apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return strings.ToLower(exchange) + ":" + hex.EncodeToString(sum[:6])
}
