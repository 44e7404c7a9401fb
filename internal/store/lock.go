package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const lockFile = ".coinbridge.lock"

var ErrLocked = errors.New("state dir locked by another process")

type LockOptions struct {
	// Takeover removes a lock whose owner is gone, or, when the owner pid is unknown,
	// one older than StaleAfter.
	Takeover   bool
	StaleAfter time.Duration
	Now        func() time.Time
}

type lockOwner struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Lock is exclusive ownership of a state directory. Two processes issuing nonces from the
// same file marks would reserve overlapping blocks.
type Lock struct {
	path string
	file *os.File
}

func AcquireLock(dir string, opts LockOptions) (*Lock, error) {
	if dir == "" {
		return nil, errors.New("state dir required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	path := filepath.Join(dir, lockFile)
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if err := writeOwner(f, now().UTC()); err != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return nil, err
			}
			return &Lock{path: path, file: f}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if !opts.Takeover {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		reason, stale, err := staleLock(path, now().UTC(), opts.StaleAfter)
		if err != nil {
			return nil, fmt.Errorf("%w: %s (inspect owner: %v)", ErrLocked, path, err)
		}
		if !stale {
			return nil, fmt.Errorf("%w: %s (%s)", ErrLocked, path, reason)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

func writeOwner(f *os.File, now time.Time) error {
	host, _ := os.Hostname()
	data, err := json.Marshal(lockOwner{PID: os.Getpid(), Host: host, StartedAt: now})
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func staleLock(path string, now time.Time, staleAfter time.Duration) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "lock_disappeared", true, nil
		}
		return "", false, err
	}
	var owner lockOwner
	if err := json.Unmarshal(data, &owner); err != nil {
		owner = lockOwner{}
	}
	if owner.PID > 0 {
		if processAlive(owner.PID) {
			return "owner_process_running", false, nil
		}
		return "owner_process_gone", true, nil
	}
	if owner.StartedAt.IsZero() {
		return "owner_unknown", false, nil
	}
	if staleAfter > 0 && now.Sub(owner.StartedAt) >= staleAfter {
		return "lock_age_exceeded", true, nil
	}
	return "lock_not_stale", false, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
