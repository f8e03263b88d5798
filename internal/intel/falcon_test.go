package intel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alhumaw/MISP-tools-fork/internal/logger"
)

func newFalconTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *FalconClient) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "test-id", r.PostForm.Get("client_id"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "test-token",
				"expires_in":   1799,
			})
			return
		}
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewFalconClient(FalconClientOptions{
		BaseURL:      srv.URL,
		ClientID:     "test-id",
		ClientSecret: "test-secret",
	}, logger.NopLogger())
	return srv, client
}

func TestGetActorEntitiesRequestsFullFieldSet(t *testing.T) {
	var gotQuery url.Values
	_, client := newFalconTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/intel/entities/actors/v1", r.URL.Path)
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"resources": []map[string]interface{}{
				{"id": 1, "slug": "fancy-bear", "description": "GRU-linked intrusion set"},
			},
		})
	})

	details, err := client.GetActorEntities(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "fancy-bear", details[0].Slug)

	// The default field set omits kill_chain and description entirely.
	assert.Equal(t, "__full__", gotQuery.Get("fields"))
	assert.Equal(t, []string{"1", "2"}, gotQuery["ids"])
}

func TestGetActorsDeltaFilterAndPaging(t *testing.T) {
	var filters []string
	page := 0
	_, client := newFalconTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/intel/combined/actors/v1", r.URL.Path)
		filters = append(filters, r.URL.Query().Get("filter"))
		assert.Equal(t, "last_modified_date.asc", r.URL.Query().Get("sort"))

		// Two actors served one per page to exercise the offset loop.
		resources := [][]map[string]interface{}{
			{{"id": 1, "name": "FANCY BEAR", "last_modified_date": 100}},
			{{"id": 2, "name": "WICKED PANDA", "last_modified_date": 200}},
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"resources": resources[page],
			"meta":      map[string]interface{}{"pagination": map[string]interface{}{"total": 2}},
		})
		page++
	})

	actors, err := client.GetActors(context.Background(), 50, "targeted")
	require.NoError(t, err)
	require.Len(t, actors, 2)
	assert.Equal(t, int64(1), actors[0].ID)
	assert.Equal(t, int64(2), actors[1].ID)

	require.Len(t, filters, 2)
	for _, filter := range filters {
		assert.Equal(t, "last_modified_date:>50+actor_type:'targeted'", filter)
	}
}

func TestDeltaFilter(t *testing.T) {
	assert.Equal(t, "last_modified_date:>100", deltaFilter(100, "all"))
	assert.Equal(t, "last_modified_date:>100", deltaFilter(100, ""))
	assert.Equal(t, "last_modified_date:>100+actor_type:'ecrime'", deltaFilter(100, "ecrime"))
}
