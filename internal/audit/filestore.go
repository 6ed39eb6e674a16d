package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ashita-ai/triagecore/internal/model"
)

// FileStore is an append-only newline-delimited canonical-JSON log:
// Append writes one entry per line with its keys sorted. Writes are
// serialized by a mutex and fsync'd so a crash never loses an
// acknowledged Append.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore opens (creating if needed) a log file at path.
func NewFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log %s: %w", path, err)
	}
	f.Close()
	return &FileStore{path: path}, nil
}

func (s *FileStore) Append(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open for append: %w", err)
	}
	defer f.Close()

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	// Re-encode through a map so the line's keys come out sorted.
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if raw, err = json.Marshal(fields); err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	raw = append(raw, '\n')
	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	return f.Sync()
}

func (s *FileStore) Tail(ctx context.Context) (model.AuditEntry, bool, error) {
	var last model.AuditEntry
	found := false
	err := s.Iterate(ctx, func(e model.AuditEntry) error {
		last = e
		found = true
		return nil
	})
	return last, found, err
}

// rewriteAll replaces the log's contents wholesale. It exists for
// tests that need to simulate tampering with an already-written file;
// production code only ever appends.
func rewriteAll(path string, entries []model.AuditEntry) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: rewrite log: %w", err)
	}
	defer f.Close()

	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("audit: marshal entry: %w", err)
		}
		raw = append(raw, '\n')
		if _, err := f.Write(raw); err != nil {
			return fmt.Errorf("audit: write entry: %w", err)
		}
	}
	return f.Sync()
}

func (s *FileStore) Iterate(_ context.Context, fn func(model.AuditEntry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e model.AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("audit: parse entry: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return scanner.Err()
}
