package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewHTTPClient(HTTPConfig{
		BaseURL:     server.URL,
		AccessToken: "test-token",
		APIVersion:  "2026-07-16",
	})
	return client, server
}

func TestCatalogInfo(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/catalog/info", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2026-07-16", r.Header.Get("Square-Version"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"api_version": "2026-07-16",
			"limits": map[string]any{
				"batch_upsert_max_objects": 1000,
			},
		})
	})
	defer server.Close()

	info, err := client.CatalogInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-07-16", info.APIVersion)
	require.NotNil(t, info.Limits)
	assert.Equal(t, 1000, info.Limits.BatchUpsertMaxObjects)
}

func TestListLocations(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/locations", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"locations": []map[string]any{
				{"id": "L1", "name": "Main", "status": "ACTIVE", "currency": "USD"},
			},
		})
	})
	defer server.Close()

	locations, err := client.ListLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, "L1", locations[0].ID)
	assert.Equal(t, "ACTIVE", locations[0].Status)
}

func TestSearchObjects(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/catalog/search", r.URL.Path)

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"ITEM"}, req.ObjectTypes)
		assert.Equal(t, 1, req.Limit)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"objects": []map[string]any{
				{"id": "OBJ1", "type": "ITEM", "version": 7},
			},
		})
	})
	defer server.Close()

	result, err := client.SearchObjects(context.Background(), SearchRequest{
		ObjectTypes: []string{"ITEM"},
		Limit:       1,
	})
	require.NoError(t, err)
	require.Len(t, result.Objects, 1)
	assert.Equal(t, "OBJ1", result.Objects[0].ID)
}

func TestAPIVersionDelegatesToCatalogInfo(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/catalog/info", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"api_version": "2026-08-20"})
	})
	defer server.Close()

	version, err := client.APIVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-08-20", version)
}

func TestStructuredErrorEnvelope(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{
				{"category": "RATE_LIMIT_ERROR", "code": "RATE_LIMITED", "detail": "slow down"},
			},
		})
	})
	defer server.Close()

	_, err := client.CatalogInfo(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, CategoryRateLimit, apiErr.Category)
	assert.Equal(t, CodeRateLimited, apiErr.Code)
	assert.Equal(t, "slow down", apiErr.Detail)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable())
}

func TestUnstructuredErrorSynthesized(t *testing.T) {
	tests := []struct {
		name             string
		status           int
		expectedCategory string
		expectedCode     string
	}{
		{name: "429", status: http.StatusTooManyRequests, expectedCategory: CategoryRateLimit, expectedCode: CodeRateLimited},
		{name: "401", status: http.StatusUnauthorized, expectedCategory: CategoryAuthentication, expectedCode: CodeUnauthorized},
		{name: "503", status: http.StatusServiceUnavailable, expectedCategory: CategoryAPIError, expectedCode: CodeInternalServerError},
		{name: "400", status: http.StatusBadRequest, expectedCategory: CategoryInvalidRequest, expectedCode: CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("gateway says no"))
			})
			defer server.Close()

			_, err := client.ListLocations(context.Background())
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.expectedCategory, apiErr.Category)
			assert.Equal(t, tt.expectedCode, apiErr.Code)
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestContextCancellation(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.CatalogInfo(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
