package dedup

import (
	"fmt"
	"strings"
	"sync"

	"github.com/alhumaw/MISP-tools-fork/internal/constants"
)

// Key derives the canonical dedup key for an actor. The external numeric id
// is the only stable identity: display names get reformatted between the
// info string and the raw record, so keying on them would let the same actor
// through twice.
func Key(actorID int64) string {
	return fmt.Sprintf("%s-%d", constants.EventPrefix, actorID)
}

// KeyFromEventInfo recovers the canonical key from an event info string of
// the form "ADV-<id> <name>[ (<region>)]". Returns false for infos created
// outside this sync.
func KeyFromEventInfo(info string) (string, bool) {
	prefix := constants.EventPrefix + "-"
	if !strings.HasPrefix(info, prefix) {
		return "", false
	}

	token := info
	if idx := strings.IndexByte(info, ' '); idx > 0 {
		token = info[:idx]
	}

	id := token[len(prefix):]
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}

	return token, true
}

// Index records the actors already materialized as events. An actor present
// in the index before a run is never reprocessed. Safe for concurrent use
// by import workers.
type Index struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewIndex() *Index {
	return &Index{seen: make(map[string]bool)}
}

// SeedFromEventInfos pre-loads the index from the target system's existing
// event infos. Returns the number of keys recognized.
func (i *Index) SeedFromEventInfos(infos []string) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	seeded := 0
	for _, info := range infos {
		key, ok := KeyFromEventInfo(info)
		if !ok {
			continue
		}
		if !i.seen[key] {
			i.seen[key] = true
			seeded++
		}
	}
	return seeded
}

// Seen reports whether the key has been imported.
func (i *Index) Seen(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.seen[key]
}

// MarkIfNew atomically claims the key. Returns true when the caller is the
// first to claim it; two workers racing on the same actor get exactly one
// true between them.
func (i *Index) MarkIfNew(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.seen[key] {
		return false
	}
	i.seen[key] = true
	return true
}

// Unmark releases a key claimed by MarkIfNew, used when an import is
// dropped after exhausting retries so a later run can retry the actor.
func (i *Index) Unmark(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.seen, key)
}

// Len returns the number of recorded keys.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.seen)
}
