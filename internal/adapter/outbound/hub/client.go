// Package hub implements the outbound client against the hub metadata API
// used by discovery Phase A.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spacebridge/gateway/internal/domain/space"
	"github.com/spacebridge/gateway/internal/service/discovery"
)

// maxBodySize caps the hub API response body against a misbehaving
// upstream.
const maxBodySize = 1 << 20 // 1MB

// Result is an alias of discovery.Result: the hub client returns the same
// shape the Phase-A fetcher port expects, so there is no translation layer
// between the adapter and the pipeline that consumes it.
type Result = discovery.Result

// rawSpaceInfo mirrors the hub API's JSON shape.
type rawSpaceInfo struct {
	Subdomain string `json:"subdomain"`
	Private   bool   `json:"private"`
	SDK       string `json:"sdk"`
	Emoji     string `json:"emoji"`
	Title     string `json:"title"`
	Runtime   struct {
		Stage string `json:"stage"`
	} `json:"runtime"`
}

// Client fetches space metadata from the hub API.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a hub Client using the given HTTP client (callers
// typically supply one with a deadline already composed by the discovery
// pipeline's per-call context).
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// GetMetadata fetches metadata for ref. If staleETag is non-empty, it is
// sent as If-None-Match; a 304 response yields Result.NotModified == true
// and a zero-value Metadata (the caller retains the previously cached
// value via cache.TouchMetadata). bearerToken, if non-empty, is attached
// as X-HF-Authorization; the standard Authorization slot stays reserved
// for the hub's own auth.
func (c *Client) GetMetadata(ctx context.Context, ref space.Ref, staleETag, bearerToken string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.HubAPIURL(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("hub: build request: %w", err)
	}
	if staleETag != "" {
		req.Header.Set("If-None-Match", staleETag)
	}
	if bearerToken != "" {
		req.Header.Set("X-HF-Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("hub: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return Result{NotModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("hub: unexpected status %d for %s", resp.StatusCode, ref)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Result{}, fmt.Errorf("hub: read response body: %w", err)
	}

	var raw rawSpaceInfo
	if err := json.Unmarshal(body, &raw); err != nil {
		return Result{}, fmt.Errorf("hub: decode response: %w", err)
	}

	md := space.Metadata{
		Ref:          ref,
		Subdomain:    raw.Subdomain,
		SDK:          raw.SDK,
		Private:      raw.Private,
		Emoji:        raw.Emoji,
		Title:        raw.Title,
		RuntimeStage: raw.Runtime.Stage,
		ETag:         resp.Header.Get("ETag"),
	}
	if err := md.Validate(); err != nil {
		return Result{}, fmt.Errorf("hub: %s: %w", ref, err)
	}
	return Result{Metadata: md}, nil
}

// GetSchema fetches the raw tool-schema response body for a gradio space,
// satisfying discovery's SchemaFetcher port (Phase B). The caller
// normalizes the body via tool.Normalize.
func (c *Client) GetSchema(ctx context.Context, md space.Metadata, bearerToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, md.SchemaEndpoint(), nil)
	if err != nil {
		return nil, fmt.Errorf("hub: build schema request: %w", err)
	}
	if bearerToken != "" {
		req.Header.Set("X-HF-Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub: schema request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("hub: unexpected schema status %d for %s", resp.StatusCode, md.Ref)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("hub: read schema response body: %w", err)
	}
	return body, nil
}
