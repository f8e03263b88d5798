package misp

import (
	"context"
	"errors"
)

// ErrHardDeleted is returned by RestoreGalaxyCluster when the cluster was
// hard-deleted and cannot be restored.
var ErrHardDeleted = errors.New("galaxy cluster was hard-deleted and cannot be restored")

// Client is the capability surface of the MISP instance consumed by the sync
// engine. Transport and authentication live behind it.
type Client interface {
	// GetOrganisation resolves the org that owns created events and clusters.
	GetOrganisation(ctx context.Context, orgUUID string) (*Organisation, error)

	// AddEvent creates the event, optionally publishing it.
	AddEvent(ctx context.Context, event *Event, publish bool) (*Event, error)

	// EventIndex returns the info strings of events previously created by
	// this source, used to seed the dedup index before a run.
	EventIndex(ctx context.Context) ([]string, error)

	// ThreatActorGalaxyID resolves the galaxy new clusters are registered in.
	ThreatActorGalaxyID(ctx context.Context) (string, error)

	// ActorClusterMap returns the current adversary-name (upper-cased) to
	// cluster registry known to the instance.
	ActorClusterMap(ctx context.Context) (map[string]*ClusterRef, error)

	GetGalaxyCluster(ctx context.Context, clusterUUID string) (*GalaxyCluster, error)
	AddGalaxyCluster(ctx context.Context, galaxyID string, cluster *GalaxyCluster) (*ClusterRef, error)
	UpdateGalaxyCluster(ctx context.Context, cluster *GalaxyCluster) error

	// RestoreGalaxyCluster un-deletes a soft-deleted cluster. Returns
	// ErrHardDeleted when the cluster no longer exists.
	RestoreGalaxyCluster(ctx context.Context, clusterID string) error

	// MaxConcurrency is the number of parallel requests the instance accepts;
	// it bounds the import worker pool.
	MaxConcurrency() int
}
