package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alhumaw/MISP-tools-fork/internal/constants"
	"github.com/alhumaw/MISP-tools-fork/internal/logger"
	apperrors "github.com/alhumaw/MISP-tools-fork/pkg/errors"
)

const (
	actorsPageSize  = 100
	entityChunkSize = 100

	// tokenSlack renews the OAuth token before it actually expires.
	tokenSlack = 60 * time.Second
)

// FalconClientOptions configures the Intel API client.
type FalconClientOptions struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// FalconClient talks to the CrowdStrike Intel API with OAuth2 client
// credentials. The token is cached and renewed transparently; safe for
// concurrent use.
type FalconClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	log          logger.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewFalconClient(opts FalconClientOptions, log logger.Logger) *FalconClient {
	return &FalconClient{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		client:       &http.Client{Timeout: constants.DefaultHTTPTimeout},
		log:          log,
	}
}

func (c *FalconClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.ErrServiceUnavailable.WithCause(err).AsRetryable()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", apperrors.ErrUnauthorized.WithDetail("status", resp.StatusCode).AsFatal()
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.token = out.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenSlack)
	return c.token, nil
}

func (c *FalconClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.ErrServiceUnavailable.WithCause(err).AsRetryable()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Cached token went stale server-side; drop it for the next call.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return apperrors.ErrUnauthorized.WithDetail("path", path).AsRetryable()
	case resp.StatusCode == http.StatusForbidden:
		return apperrors.ErrForbidden.WithDetail("path", path).AsFatal()
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.ErrServiceUnavailable.WithDetail("path", path).AsRetryable()
	case resp.StatusCode >= 400:
		return apperrors.ErrInternal.WithDetail("path", path).WithDetail("status", resp.StatusCode).AsFatal()
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// deltaFilter builds the FQL filter for actors modified after the watermark,
// optionally restricted to one actor kind.
func deltaFilter(since int64, kind string) string {
	filter := fmt.Sprintf("last_modified_date:>%d", since)
	if kind != "" && kind != "all" {
		filter += fmt.Sprintf("+actor_type:'%s'", kind)
	}
	return filter
}

func (c *FalconClient) GetActors(ctx context.Context, since int64, kind string) ([]ActorRecord, error) {
	var actors []ActorRecord
	offset := 0

	for {
		query := url.Values{}
		query.Set("filter", deltaFilter(since, kind))
		query.Set("sort", "last_modified_date.asc")
		query.Set("limit", strconv.Itoa(actorsPageSize))
		query.Set("offset", strconv.Itoa(offset))

		var out struct {
			Resources []ActorRecord `json:"resources"`
			Meta      struct {
				Pagination struct {
					Total int `json:"total"`
				} `json:"pagination"`
			} `json:"meta"`
		}
		if err := c.get(ctx, "/intel/combined/actors/v1", query, &out); err != nil {
			return nil, fmt.Errorf("failed to fetch adversary page at offset %d: %w", offset, err)
		}

		actors = append(actors, out.Resources...)
		offset += len(out.Resources)
		if len(out.Resources) == 0 || offset >= out.Meta.Pagination.Total {
			break
		}
	}

	c.log.DebugwCtx(ctx, "Fetched adversary delta",
		"since", since,
		"kind", kind,
		"count", len(actors),
	)
	return actors, nil
}

func (c *FalconClient) GetActorEntities(ctx context.Context, ids []int64) ([]DetailRecord, error) {
	var details []DetailRecord

	for start := 0; start < len(ids); start += entityChunkSize {
		end := start + entityChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		query := url.Values{}
		// Without the full field set the API omits kill_chain and the other
		// rich detail the mapper is built around.
		query.Set("fields", "__full__")
		for _, id := range ids[start:end] {
			query.Add("ids", strconv.FormatInt(id, 10))
		}

		var out struct {
			Resources []DetailRecord `json:"resources"`
		}
		if err := c.get(ctx, "/intel/entities/actors/v1", query, &out); err != nil {
			return nil, fmt.Errorf("failed to fetch adversary details: %w", err)
		}
		details = append(details, out.Resources...)
	}

	return details, nil
}

var _ Client = (*FalconClient)(nil)
