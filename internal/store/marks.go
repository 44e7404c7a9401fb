package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const marksFile = "nonce_marks.json"

type markRecord struct {
	Mark      int64     `json:"mark"`
	UpdatedAt time.Time `json:"updated_at"`
}

type marksDocument struct {
	Version int                   `json:"version"`
	Scopes  map[string]markRecord `json:"scopes"`
}

// FileMarks persists nonce high-water marks in one JSON document under a state directory.
// Every reservation rewrites the document atomically, so a crash leaves either the old or
// the new marks on disk. It serves a single process: the document is cached in memory and
// the directory is owned through AcquireLock. Use PostgresMarks to share a credential
// between hosts.
type FileMarks struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	loaded bool
	doc    marksDocument
}

func NewFileMarks(dir string) (*FileMarks, error) {
	if dir == "" {
		return nil, errors.New("state dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileMarks{dir: dir, now: time.Now}, nil
}

func (s *FileMarks) path() string {
	return filepath.Join(s.dir, marksFile)
}

func (s *FileMarks) loadLocked() error {
	if s.loaded {
		return nil
	}
	s.doc = marksDocument{Version: 1, Scopes: make(map[string]markRecord)}
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return err
	}
	var doc marksDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode %s: %w", s.path(), err)
	}
	if doc.Scopes != nil {
		s.doc.Scopes = doc.Scopes
	}
	s.loaded = true
	return nil
}

func (s *FileMarks) LoadMark(_ context.Context, scope string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return 0, false, err
	}
	rec, ok := s.doc.Scopes[scope]
	return rec.Mark, ok, nil
}

// ReserveBlock raises the mark for scope to max(mark+1, atLeast)+size-1, persists it and
// returns the first value of the block.
func (s *FileMarks) ReserveBlock(_ context.Context, scope string, atLeast, size int64) (int64, error) {
	if size < 1 {
		return 0, fmt.Errorf("reserve %s: block size %d", scope, size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return 0, err
	}
	start := atLeast
	if rec, ok := s.doc.Scopes[scope]; ok && rec.Mark+1 > start {
		start = rec.Mark + 1
	}
	next := marksDocument{Version: 1, Scopes: make(map[string]markRecord, len(s.doc.Scopes)+1)}
	for k, v := range s.doc.Scopes {
		next.Scopes[k] = v
	}
	next.Scopes[scope] = markRecord{Mark: start + size - 1, UpdatedAt: s.now().UTC()}
	if err := writeJSONAtomic(s.path(), next); err != nil {
		return 0, err
	}
	s.doc = next
	return start, nil
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	syncDir(dir, path)
	return nil
}

// syncDir makes the rename durable where the platform allows it; failure is logged only.
func syncDir(dir, target string) {
	d, err := os.Open(dir)
	if err != nil {
		log.Printf("level=WARN event=store_dir_fsync_failed reason=%q dir=%q target=%q", err.Error(), dir, target)
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		log.Printf("level=WARN event=store_dir_fsync_failed reason=%q dir=%q target=%q", err.Error(), dir, target)
	}
}
