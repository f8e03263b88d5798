package misp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/alhumaw/MISP-tools-fork/internal/constants"
	"github.com/alhumaw/MISP-tools-fork/internal/logger"
	apperrors "github.com/alhumaw/MISP-tools-fork/pkg/errors"
)

// HTTPClientOptions configures the REST client for one MISP instance.
type HTTPClientOptions struct {
	BaseURL     string
	AuthKey     string
	ThreadCount int
}

// HTTPClient talks to the MISP REST API. Safe for concurrent use; the import
// worker pool shares one instance.
type HTTPClient struct {
	baseURL string
	authKey string
	threads int
	client  *http.Client
	log     logger.Logger

	mu       sync.Mutex
	galaxyID string
}

func NewHTTPClient(opts HTTPClientOptions, log logger.Logger) *HTTPClient {
	threads := opts.ThreadCount
	if threads <= 0 {
		threads = constants.DefaultConcurrency
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		authKey: opts.AuthKey,
		threads: threads,
		client:  &http.Client{Timeout: constants.DefaultHTTPTimeout},
		log:     log,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.authKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.ErrServiceUnavailable.WithCause(err).AsRetryable()
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode, path); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// statusError classifies the response status so the retry layer treats
// client-side failures as permanent and server-side ones as transient.
func statusError(status int, path string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return apperrors.ErrNotFound.WithDetail("path", path)
	case status == http.StatusUnauthorized:
		return apperrors.ErrUnauthorized.WithDetail("path", path).AsFatal()
	case status == http.StatusForbidden:
		return apperrors.ErrForbidden.WithDetail("path", path).AsFatal()
	case status == http.StatusTooManyRequests:
		return apperrors.ErrServiceUnavailable.WithDetail("path", path).AsRetryable()
	case status >= 500:
		return apperrors.ErrServiceUnavailable.WithDetail("path", path).WithDetail("status", status).AsRetryable()
	default:
		return apperrors.ErrInternal.WithDetail("path", path).WithDetail("status", status).AsFatal()
	}
}

func (c *HTTPClient) GetOrganisation(ctx context.Context, orgUUID string) (*Organisation, error) {
	var out struct {
		Organisation Organisation `json:"Organisation"`
	}
	if err := c.do(ctx, http.MethodGet, "/organisations/view/"+orgUUID, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch organisation %s: %w", orgUUID, err)
	}
	return &out.Organisation, nil
}

func (c *HTTPClient) AddEvent(ctx context.Context, event *Event, publish bool) (*Event, error) {
	event.Published = publish
	var out struct {
		Event Event `json:"Event"`
	}
	body := map[string]*Event{"Event": event}
	if err := c.do(ctx, http.MethodPost, "/events/add", body, &out); err != nil {
		return nil, fmt.Errorf("failed to add event %q: %w", event.Info, err)
	}
	return &out.Event, nil
}

func (c *HTTPClient) EventIndex(ctx context.Context) ([]string, error) {
	var out []struct {
		Info string `json:"info"`
	}
	body := map[string]interface{}{"minimal": true}
	if err := c.do(ctx, http.MethodPost, "/events/index", body, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch event index: %w", err)
	}

	infos := make([]string, 0, len(out))
	for _, entry := range out {
		infos = append(infos, entry.Info)
	}
	c.log.DebugwCtx(ctx, "Fetched event index", "count", len(infos))
	return infos, nil
}

func (c *HTTPClient) ThreatActorGalaxyID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.galaxyID != "" {
		return c.galaxyID, nil
	}

	var out []struct {
		Galaxy struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"Galaxy"`
	}
	if err := c.do(ctx, http.MethodGet, "/galaxies/index", nil, &out); err != nil {
		return "", fmt.Errorf("failed to list galaxies: %w", err)
	}

	for _, entry := range out {
		if entry.Galaxy.Type == constants.ClusterTypeThreatActor {
			c.galaxyID = entry.Galaxy.ID
			return c.galaxyID, nil
		}
	}
	return "", apperrors.ErrNotFound.WithDetail("galaxy_type", constants.ClusterTypeThreatActor)
}

// wireCluster is the REST representation of a galaxy cluster.
type wireCluster struct {
	ID          string `json:"id"`
	UUID        string `json:"uuid"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	TagName     string `json:"tag_name"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Deleted     bool   `json:"deleted"`
	Default     bool   `json:"default"`
	Elements    []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"GalaxyElement"`
}

func (w wireCluster) toCluster() *GalaxyCluster {
	cluster := &GalaxyCluster{
		ID:          w.ID,
		UUID:        w.UUID,
		Type:        w.Type,
		Value:       w.Value,
		TagName:     w.TagName,
		Description: w.Description,
		Source:      w.Source,
		Deleted:     w.Deleted,
		Default:     w.Default,
	}
	for _, el := range w.Elements {
		cluster.Elements = append(cluster.Elements, ClusterElement{Key: el.Key, Value: el.Value})
	}
	return cluster
}

func (c *HTTPClient) ActorClusterMap(ctx context.Context) (map[string]*ClusterRef, error) {
	galaxyID, err := c.ThreatActorGalaxyID(ctx)
	if err != nil {
		return nil, err
	}

	var out struct {
		Response []struct {
			GalaxyCluster wireCluster `json:"GalaxyCluster"`
		} `json:"response"`
	}
	body := map[string]interface{}{"galaxy_id": galaxyID}
	if err := c.do(ctx, http.MethodPost, "/galaxy_clusters/restSearch", body, &out); err != nil {
		return nil, fmt.Errorf("failed to search galaxy clusters: %w", err)
	}

	clusterMap := make(map[string]*ClusterRef, len(out.Response))
	for _, entry := range out.Response {
		cluster := entry.GalaxyCluster
		if cluster.Value == "" {
			continue
		}
		clusterMap[strings.ToUpper(cluster.Value)] = &ClusterRef{
			UUID:    cluster.UUID,
			ID:      cluster.ID,
			TagName: cluster.TagName,
			Name:    cluster.Value,
			Deleted: cluster.Deleted,
			Custom:  !cluster.Default && cluster.Source == constants.SourceName,
		}
	}
	return clusterMap, nil
}

func (c *HTTPClient) GetGalaxyCluster(ctx context.Context, clusterUUID string) (*GalaxyCluster, error) {
	var out struct {
		GalaxyCluster wireCluster `json:"GalaxyCluster"`
	}
	if err := c.do(ctx, http.MethodGet, "/galaxy_clusters/view/"+clusterUUID, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch galaxy cluster %s: %w", clusterUUID, err)
	}
	return out.GalaxyCluster.toCluster(), nil
}

func (c *HTTPClient) AddGalaxyCluster(ctx context.Context, galaxyID string, cluster *GalaxyCluster) (*ClusterRef, error) {
	var out struct {
		GalaxyCluster wireCluster `json:"GalaxyCluster"`
	}
	body := map[string]*GalaxyCluster{"GalaxyCluster": cluster}
	if err := c.do(ctx, http.MethodPost, "/galaxy_clusters/add/"+galaxyID, body, &out); err != nil {
		return nil, fmt.Errorf("failed to add galaxy cluster %q: %w", cluster.Value, err)
	}

	created := out.GalaxyCluster
	return &ClusterRef{
		UUID:    created.UUID,
		ID:      created.ID,
		TagName: created.TagName,
		Name:    created.Value,
		Deleted: created.Deleted,
	}, nil
}

func (c *HTTPClient) UpdateGalaxyCluster(ctx context.Context, cluster *GalaxyCluster) error {
	body := map[string]*GalaxyCluster{"GalaxyCluster": cluster}
	if err := c.do(ctx, http.MethodPost, "/galaxy_clusters/edit/"+cluster.UUID, body, nil); err != nil {
		return fmt.Errorf("failed to update galaxy cluster %s: %w", cluster.UUID, err)
	}
	return nil
}

func (c *HTTPClient) RestoreGalaxyCluster(ctx context.Context, clusterID string) error {
	err := c.do(ctx, http.MethodPost, "/galaxy_clusters/restore/"+clusterID, nil, nil)
	if apperrors.IsNotFound(err) {
		// The instance purged the cluster entirely; it cannot come back.
		return ErrHardDeleted
	}
	if err != nil {
		return fmt.Errorf("failed to restore galaxy cluster %s: %w", clusterID, err)
	}
	return nil
}

func (c *HTTPClient) MaxConcurrency() int {
	return c.threads
}

var _ Client = (*HTTPClient)(nil)
