// Package misptest provides a configurable in-memory misp.Client for tests.
package misptest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alhumaw/MISP-tools-fork/internal/misp"
)

// Client implements misp.Client against in-memory state. Any function field
// left nil falls back to the built-in behavior; tests override individual
// fields to inject failures.
type Client struct {
	mu sync.Mutex

	Org        *misp.Organisation
	GalaxyID   string
	ClusterMap map[string]*misp.ClusterRef
	Clusters   map[string]*misp.GalaxyCluster // keyed by uuid
	Infos      []string
	Threads    int

	CreatedEvents   []*misp.Event
	RestoredIDs     []string
	UpdatedClusters []*misp.GalaxyCluster

	AddEventFn       func(ctx context.Context, event *misp.Event, publish bool) (*misp.Event, error)
	RestoreClusterFn func(ctx context.Context, clusterID string) error
	AddClusterFn     func(ctx context.Context, galaxyID string, cluster *misp.GalaxyCluster) (*misp.ClusterRef, error)
}

func NewClient() *Client {
	return &Client{
		Org:        &misp.Organisation{ID: "1", UUID: "00000000-0000-0000-0000-000000000001", Name: "CrowdStrike"},
		GalaxyID:   "17",
		ClusterMap: make(map[string]*misp.ClusterRef),
		Clusters:   make(map[string]*misp.GalaxyCluster),
		Threads:    4,
	}
}

func (c *Client) GetOrganisation(ctx context.Context, orgUUID string) (*misp.Organisation, error) {
	return c.Org, nil
}

func (c *Client) AddEvent(ctx context.Context, event *misp.Event, publish bool) (*misp.Event, error) {
	if c.AddEventFn != nil {
		return c.AddEventFn(ctx, event, publish)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	event.Published = publish
	c.CreatedEvents = append(c.CreatedEvents, event)
	return event, nil
}

func (c *Client) EventIndex(ctx context.Context) ([]string, error) {
	return c.Infos, nil
}

func (c *Client) ThreatActorGalaxyID(ctx context.Context) (string, error) {
	return c.GalaxyID, nil
}

func (c *Client) ActorClusterMap(ctx context.Context) (map[string]*misp.ClusterRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make(map[string]*misp.ClusterRef, len(c.ClusterMap))
	for k, v := range c.ClusterMap {
		ref := *v
		copied[k] = &ref
	}
	return copied, nil
}

func (c *Client) GetGalaxyCluster(ctx context.Context, clusterUUID string) (*misp.GalaxyCluster, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cluster, ok := c.Clusters[clusterUUID]
	if !ok {
		return nil, fmt.Errorf("galaxy cluster %s not found", clusterUUID)
	}
	return cluster, nil
}

func (c *Client) AddGalaxyCluster(ctx context.Context, galaxyID string, cluster *misp.GalaxyCluster) (*misp.ClusterRef, error) {
	if c.AddClusterFn != nil {
		return c.AddClusterFn(ctx, galaxyID, cluster)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cluster.UUID = uuid.NewString()
	cluster.ID = fmt.Sprintf("%d", len(c.Clusters)+1)
	cluster.TagName = fmt.Sprintf(`misp-galaxy:threat-actor="%s"`, cluster.Value)
	c.Clusters[cluster.UUID] = cluster

	return &misp.ClusterRef{
		UUID:    cluster.UUID,
		ID:      cluster.ID,
		TagName: cluster.TagName,
		Name:    cluster.Value,
		Deleted: cluster.Deleted,
	}, nil
}

func (c *Client) UpdateGalaxyCluster(ctx context.Context, cluster *misp.GalaxyCluster) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UpdatedClusters = append(c.UpdatedClusters, cluster)
	c.Clusters[cluster.UUID] = cluster
	return nil
}

func (c *Client) RestoreGalaxyCluster(ctx context.Context, clusterID string) error {
	if c.RestoreClusterFn != nil {
		return c.RestoreClusterFn(ctx, clusterID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RestoredIDs = append(c.RestoredIDs, clusterID)
	return nil
}

func (c *Client) MaxConcurrency() int {
	return c.Threads
}

var _ misp.Client = (*Client)(nil)
