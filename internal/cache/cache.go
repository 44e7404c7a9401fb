package cache

import (
	"context"
	"sync"
	"time"

	"coinbridge/internal/core"
)

// Entry is a cached account snapshot with the time it was fetched from the exchange.
type Entry struct {
	Info      core.AccountInfo `json:"info"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// Fresh reports whether the entry is younger than ttl at now. An entry exactly ttl old is stale.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	age := now.Sub(e.FetchedAt)
	return age >= 0 && age < ttl
}

// Memory keeps account snapshots in process for at most TTL.
type Memory struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{TTL: ttl, Now: time.Now, entries: make(map[string]Entry)}
}

func (m *Memory) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Memory) Get(_ context.Context, key string) (core.AccountInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return core.AccountInfo{}, false, nil
	}
	if !e.Fresh(m.now(), m.TTL) {
		delete(m.entries, key)
		return core.AccountInfo{}, false, nil
	}
	return cloneInfo(e.Info), true, nil
}

func (m *Memory) Put(_ context.Context, key string, info core.AccountInfo) error {
	if m.TTL <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]Entry)
	}
	m.entries[key] = Entry{Info: cloneInfo(info), FetchedAt: m.now()}
	return nil
}

func cloneInfo(info core.AccountInfo) core.AccountInfo {
	info.Wallets = append([]core.Wallet(nil), info.Wallets...)
	return info
}
