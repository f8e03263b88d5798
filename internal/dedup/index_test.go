package dedup

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "ADV-12345", Key(12345))
}

func TestKeyFromEventInfo(t *testing.T) {
	tests := []struct {
		name    string
		info    string
		want    string
		wantOK  bool
	}{
		{name: "plain info", info: "ADV-811 FANCY BEAR", want: "ADV-811", wantOK: true},
		{name: "info with region suffix", info: "ADV-811 FANCY BEAR (RUSSIAN FEDERATION)", want: "ADV-811", wantOK: true},
		{name: "key only", info: "ADV-42", want: "ADV-42", wantOK: true},
		{name: "foreign event", info: "OSINT feed 2024-01-02", wantOK: false},
		{name: "prefix without id", info: "ADV- broken", wantOK: false},
		{name: "non numeric id", info: "ADV-abc FAKE", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := KeyFromEventInfo(tt.info)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, key)
			}
		})
	}
}

func TestIndexSeedFromEventInfos(t *testing.T) {
	idx := NewIndex()

	seeded := idx.SeedFromEventInfos([]string{
		"ADV-1 FANCY BEAR (RUSSIAN FEDERATION)",
		"ADV-2 WICKED PANDA",
		"ADV-2 WICKED PANDA",     // duplicate info
		"Some unrelated event",   // foreign event
	})

	assert.Equal(t, 2, seeded)
	assert.True(t, idx.Seen("ADV-1"))
	assert.True(t, idx.Seen("ADV-2"))
	assert.False(t, idx.Seen("ADV-3"))
}

func TestIndexMarkIfNew(t *testing.T) {
	idx := NewIndex()

	assert.True(t, idx.MarkIfNew("ADV-7"))
	assert.False(t, idx.MarkIfNew("ADV-7"))
	assert.True(t, idx.Seen("ADV-7"))

	idx.Unmark("ADV-7")
	assert.False(t, idx.Seen("ADV-7"))
	assert.True(t, idx.MarkIfNew("ADV-7"))
}

func TestIndexMarkIfNewConcurrent(t *testing.T) {
	idx := NewIndex()

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if idx.MarkIfNew("ADV-99") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1, "exactly one worker may claim a key")
}
