package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alhumaw/MISP-tools-fork/internal/logger"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actors_checkpoint")
	return NewFileStore(path, logger.NopLogger())
}

func TestFileStoreFirstRun(t *testing.T) {
	store := newTestStore(t)

	ts, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)
}

func TestFileStoreAdvanceAndRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Advance(ctx, 1700000000))

	ts, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)
}

func TestFileStoreMonotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		advance int64
		want    int64
	}{
		{name: "initial advance", advance: 100, want: 100},
		{name: "forward", advance: 200, want: 200},
		{name: "backwards is a no-op", advance: 150, want: 200},
		{name: "equal is a no-op", advance: 200, want: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.Advance(ctx, tt.advance))

			ts, err := store.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ts)
		})
	}
}

func TestFileStoreMalformedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actors_checkpoint")
	require.NoError(t, os.WriteFile(path, []byte("not-a-timestamp"), 0o600))

	store := NewFileStore(path, logger.NopLogger())
	ctx := context.Background()

	ts, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts, "malformed value should read as zero")

	// Any advance replaces the malformed value.
	require.NoError(t, store.Advance(ctx, 300))
	ts, err = store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300), ts)
}

func TestFileStoreConcurrentAdvance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(ts int64) {
			defer wg.Done()
			assert.NoError(t, store.Advance(ctx, ts))
		}(i)
	}
	wg.Wait()

	ts, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), ts, "highest timestamp must win")
}
