package galaxy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alhumaw/MISP-tools-fork/internal/constants"
	"github.com/alhumaw/MISP-tools-fork/internal/intel"
	"github.com/alhumaw/MISP-tools-fork/internal/logger"
	"github.com/alhumaw/MISP-tools-fork/internal/misp"
	"github.com/alhumaw/MISP-tools-fork/pkg/metrics"
)

// Aligner maintains the 1:1 mapping between adversary identities and
// threat-actor galaxy clusters. It runs strictly serially, before the import
// fan-out; the map it returns is only read afterwards.
type Aligner struct {
	client misp.Client
	org    *misp.Organisation
	log    logger.Logger
}

func NewAligner(client misp.Client, org *misp.Organisation, log logger.Logger) *Aligner {
	return &Aligner{client: client, org: org, log: log}
}

// Align reconciles the fetched actors against the instance's cluster
// registry: merges new classification elements into existing clusters,
// creates clusters for unseen actors and restores soft-deleted ones.
// Returns the completed map keyed by upper-cased actor name.
func (a *Aligner) Align(ctx context.Context, actors []intel.ActorRecord, details map[int64]intel.DetailRecord) (map[string]*misp.ClusterRef, error) {
	clusterMap, err := a.client.ActorClusterMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch actor cluster map: %w", err)
	}
	if clusterMap == nil {
		clusterMap = make(map[string]*misp.ClusterRef)
	}

	actorsByID := make(map[int64]*intel.ActorRecord, len(actors))
	for idx := range actors {
		actorsByID[actors[idx].ID] = &actors[idx]
	}

	// Clusters fetched from the instance carry no source actor ID; join them
	// to this batch by name so element merges can find their detail records.
	for name, ref := range clusterMap {
		if ref.CSID != 0 {
			continue
		}
		for idx := range actors {
			if strings.ToUpper(actors[idx].Name) == name {
				ref.CSID = actors[idx].ID
				break
			}
		}
	}

	a.mergeExisting(ctx, clusterMap, actorsByID, details)

	if err := a.createMissing(ctx, clusterMap, actors, details); err != nil {
		return nil, err
	}

	a.restoreDeleted(ctx, clusterMap)

	return clusterMap, nil
}

func (a *Aligner) mergeExisting(ctx context.Context, clusterMap map[string]*misp.ClusterRef, actorsByID map[int64]*intel.ActorRecord, details map[int64]intel.DetailRecord) {
	for name, ref := range clusterMap {
		detail, ok := details[ref.CSID]
		if !ok {
			continue
		}

		cluster, err := a.client.GetGalaxyCluster(ctx, ref.UUID)
		if err != nil {
			a.log.WarnwCtx(ctx, "Could not fetch galaxy cluster for element merge",
				"actor", name,
				"cluster_uuid", ref.UUID,
				"error", err,
			)
			continue
		}

		added := MergeClusterElements(actorsByID[ref.CSID], detail, cluster)
		if added == 0 {
			continue
		}

		if err := a.client.UpdateGalaxyCluster(ctx, cluster); err != nil {
			a.log.WarnwCtx(ctx, "Could not push merged cluster elements",
				"actor", name,
				"cluster_uuid", ref.UUID,
				"error", err,
			)
			continue
		}

		metrics.ClusterOpsTotal.WithLabelValues("merged").Inc()
		a.log.DebugwCtx(ctx, "Merged cluster elements",
			"actor", name,
			"added", added,
		)
	}
}

func (a *Aligner) createMissing(ctx context.Context, clusterMap map[string]*misp.ClusterRef, actors []intel.ActorRecord, details map[int64]intel.DetailRecord) error {
	var galaxyID string

	for idx := range actors {
		actor := &actors[idx]
		if actor.Name == "" {
			continue
		}

		key := strings.ToUpper(actor.Name)
		if _, ok := clusterMap[key]; ok {
			continue
		}

		if galaxyID == "" {
			id, err := a.client.ThreatActorGalaxyID(ctx)
			if err != nil {
				return fmt.Errorf("failed to resolve threat-actor galaxy: %w", err)
			}
			galaxyID = id
		}

		detail := details[actor.ID]
		cluster := &misp.GalaxyCluster{
			Type:         constants.ClusterTypeThreatActor,
			Value:        key,
			Description:  detail.Description,
			Source:       constants.SourceName,
			Authors:      []string{constants.SourceName},
			Distribution: constants.ClusterDistributionOrg,
			Default:      false,
			OrgcUUID:     a.org.UUID,
		}
		MergeClusterElements(actor, detail, cluster)

		ref, err := a.client.AddGalaxyCluster(ctx, galaxyID, cluster)
		if err != nil {
			a.log.WarnwCtx(ctx, "Could not create galaxy cluster, actor will carry a provisional tag",
				"actor", actor.Name,
				"error", err,
			)
			continue
		}

		ref.CSID = actor.ID
		ref.Custom = true
		if ref.Name == "" {
			ref.Name = key
		}
		clusterMap[key] = ref

		metrics.ClusterOpsTotal.WithLabelValues("created").Inc()
		a.log.DebugwCtx(ctx, "Created galaxy cluster",
			"actor", actor.Name,
			"cluster_uuid", ref.UUID,
		)
	}

	return nil
}

func (a *Aligner) restoreDeleted(ctx context.Context, clusterMap map[string]*misp.ClusterRef) {
	for name, ref := range clusterMap {
		if !ref.Deleted {
			continue
		}

		err := a.client.RestoreGalaxyCluster(ctx, ref.ID)
		if errors.Is(err, misp.ErrHardDeleted) {
			// -ca style hard deletes cannot come back; skip, never fail the run.
			metrics.ClusterOpsTotal.WithLabelValues("restore_failed").Inc()
			a.log.WarnwCtx(ctx, "Galaxy cluster was hard-deleted, skipping restore",
				"actor", name,
				"cluster_id", ref.ID,
			)
			continue
		}
		if err != nil {
			metrics.ClusterOpsTotal.WithLabelValues("restore_failed").Inc()
			a.log.WarnwCtx(ctx, "Could not restore soft-deleted galaxy cluster",
				"actor", name,
				"cluster_id", ref.ID,
				"error", err,
			)
			continue
		}

		ref.Deleted = false
		metrics.ClusterOpsTotal.WithLabelValues("restored").Inc()
		a.log.InfowCtx(ctx, "Restored soft-deleted galaxy cluster",
			"actor", name,
			"cluster_id", ref.ID,
		)
	}
}
