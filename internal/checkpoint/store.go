package checkpoint

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/alhumaw/MISP-tools-fork/internal/logger"
)

// Store persists the sync watermark: the unix timestamp the import has
// processed up to. Advance is a monotonic compare-and-swap; the value never
// moves backwards and concurrent callers are safe.
type Store interface {
	// Read returns the persisted watermark. Zero means first run; a
	// malformed persisted value is logged and also treated as zero.
	Read(ctx context.Context) (int64, error)

	// Advance persists ts if it is greater than the current value.
	// Idempotent; advancing to an older timestamp is a no-op.
	Advance(ctx context.Context, ts int64) error
}

// FileStore keeps the watermark as a single integer in a text file.
type FileStore struct {
	path string
	mu   sync.Mutex
	log  logger.Logger
}

func NewFileStore(path string, log logger.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

func (s *FileStore) Read(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

func (s *FileStore) read(ctx context.Context) (int64, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint file %s: %w", s.path, err)
	}

	value := strings.TrimSpace(string(raw))
	if value == "" {
		return 0, nil
	}

	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		s.log.WarnwCtx(ctx, "Malformed checkpoint value, treating as first run",
			"path", s.path,
			"value", value,
		)
		return 0, nil
	}

	return ts, nil
}

func (s *FileStore) Advance(ctx context.Context, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(ctx)
	if err != nil {
		return err
	}
	if ts <= current {
		return nil
	}

	if err := os.WriteFile(s.path, []byte(strconv.FormatInt(ts, 10)), 0o600); err != nil {
		return fmt.Errorf("failed to write checkpoint file %s: %w", s.path, err)
	}

	s.log.DebugwCtx(ctx, "Checkpoint advanced",
		"from", current,
		"to", ts,
	)
	return nil
}
