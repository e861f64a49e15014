package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig contains configuration for the HTTP catalog client.
type HTTPConfig struct {
	// BaseURL is the catalog API endpoint, without a trailing slash
	BaseURL string

	// AccessToken is the bearer token for the merchant account
	AccessToken string

	// APIVersion is the version header pinned on every request.
	// Empty means the service default.
	APIVersion string

	// Timeout is the HTTP request timeout for catalog API calls
	Timeout time.Duration
}

// HTTPClient is the Client implementation backed by the real catalog service.
type HTTPClient struct {
	config     HTTPConfig
	httpClient *http.Client
}

// NewHTTPClient creates a catalog client with the specified configuration.
// A zero Timeout defaults to 30 seconds.
func NewHTTPClient(config HTTPConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// CatalogInfo fetches API capabilities and limits.
func (c *HTTPClient) CatalogInfo(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.do(ctx, http.MethodGet, "/v2/catalog/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListLocations enumerates the merchant's locations.
func (c *HTTPClient) ListLocations(ctx context.Context) ([]Location, error) {
	var resp struct {
		Locations []Location `json:"locations"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/locations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locations, nil
}

// SearchObjects runs a catalog object search.
func (c *HTTPClient) SearchObjects(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	var result SearchResult
	if err := c.do(ctx, http.MethodPost, "/v2/catalog/search", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// APIVersion returns the version string the service currently reports.
// The catalog info endpoint is the authoritative source.
func (c *HTTPClient) APIVersion(ctx context.Context) (string, error) {
	info, err := c.CatalogInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.APIVersion, nil
}

// do executes one catalog API request and decodes the response into out.
// Non-2xx responses are decoded into an APIError so callers can classify
// them; undecodable error bodies degrade to a bare APIError with only the
// HTTP status attached.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIVersion != "" {
		req.Header.Set("Square-Version", c.config.APIVersion)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog api request %s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

// decodeAPIError turns a non-2xx response into an *APIError.
func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Errors []APIError `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && len(envelope.Errors) > 0 {
		apiErr := envelope.Errors[0]
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	// No structured envelope; synthesize one from the status code alone.
	apiErr := &APIError{StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Category = CategoryRateLimit
		apiErr.Code = CodeRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Category = CategoryAuthentication
		apiErr.Code = CodeUnauthorized
	case resp.StatusCode >= 500:
		apiErr.Category = CategoryAPIError
		apiErr.Code = CodeInternalServerError
	default:
		apiErr.Category = CategoryInvalidRequest
		apiErr.Code = CodeBadRequest
	}
	return apiErr
}
