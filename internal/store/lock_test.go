package store

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func writeLock(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, lockFile), []byte(body), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
}

func TestAcquireLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir, LockOptions{})
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if _, err := AcquireLock(dir, LockOptions{}); !errors.Is(err, ErrLocked) {
		t.Fatalf("second AcquireLock() error = %v, want ErrLocked", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	again, err := AcquireLock(dir, LockOptions{})
	if err != nil {
		t.Fatalf("AcquireLock() after release error = %v", err)
	}
	_ = again.Release()
}

func TestAcquireLockTakesOverDeadOwner(t *testing.T) {
	dir := t.TempDir()
	writeLock(t, dir, `{"pid":999999,"started_at":"2024-01-01T00:00:00Z"}`)
	lock, err := AcquireLock(dir, LockOptions{Takeover: true})
	if err != nil {
		t.Fatalf("AcquireLock() error = %v, want takeover", err)
	}
	_ = lock.Release()
}

func TestAcquireLockKeepsRunningOwner(t *testing.T) {
	dir := t.TempDir()
	writeLock(t, dir, `{"pid":`+strconv.Itoa(os.Getpid())+`,"started_at":"2020-01-01T00:00:00Z"}`)
	_, err := AcquireLock(dir, LockOptions{Takeover: true, StaleAfter: time.Second})
	if !errors.Is(err, ErrLocked) || !strings.Contains(err.Error(), "owner_process_running") {
		t.Fatalf("AcquireLock() error = %v, want owner_process_running", err)
	}
}

func TestAcquireLockAgeTakeoverWithoutPID(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	writeLock(t, dir, `{"started_at":"`+started.Format(time.RFC3339)+`"}`)

	_, err := AcquireLock(dir, LockOptions{
		Takeover:   true,
		StaleAfter: time.Hour,
		Now:        func() time.Time { return started.Add(time.Minute) },
	})
	if err == nil || !strings.Contains(err.Error(), "lock_not_stale") {
		t.Fatalf("AcquireLock(recent) error = %v, want lock_not_stale", err)
	}

	lock, err := AcquireLock(dir, LockOptions{
		Takeover:   true,
		StaleAfter: time.Hour,
		Now:        func() time.Time { return started.Add(2 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("AcquireLock(stale) error = %v", err)
	}
	_ = lock.Release()
}

func TestAcquireLockUnreadableOwnerIsKept(t *testing.T) {
	dir := t.TempDir()
	writeLock(t, dir, "garbage")
	_, err := AcquireLock(dir, LockOptions{Takeover: true, StaleAfter: time.Nanosecond})
	if err == nil || !strings.Contains(err.Error(), "owner_unknown") {
		t.Fatalf("AcquireLock() error = %v, want owner_unknown", err)
	}
}
