package intel

import "context"

// Client is the capability surface of the CrowdStrike Intel API consumed by
// the sync engine. Transport and authentication live behind it.
type Client interface {
	// GetActors returns the actors of the given kind changed since the unix
	// timestamp.
	GetActors(ctx context.Context, since int64, kind string) ([]ActorRecord, error)

	// GetActorEntities returns the full detail records for the given actor IDs.
	GetActorEntities(ctx context.Context, ids []int64) ([]DetailRecord, error)
}

// DetailsByID indexes detail records by actor ID for join lookups.
func DetailsByID(details []DetailRecord) map[int64]DetailRecord {
	indexed := make(map[int64]DetailRecord, len(details))
	for _, det := range details {
		indexed[det.ID] = det
	}
	return indexed
}
