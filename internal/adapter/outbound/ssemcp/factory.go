package ssemcp

import (
	"net/http"

	"github.com/spacebridge/gateway/internal/port/outbound"
)

// Factory builds a transient Client per invocation, satisfying
// bridge.ClientFactory. Each call to NewClient opens a new, single-use
// SSE client; none are pooled or reused across
// invocations.
type Factory struct {
	httpClient *http.Client
}

// NewFactory builds a Factory using the given HTTP client (nil uses a
// zero-value http.Client, matching Client's own default).
func NewFactory(httpClient *http.Client) *Factory {
	return &Factory{httpClient: httpClient}
}

// NewClient implements bridge.ClientFactory.
func (f *Factory) NewClient(subdomain, bearerToken string) outbound.SSEClient {
	return New(subdomain, bearerToken, f.httpClient)
}
