// Package client builds the outbound HTTP clients used by the server.
package client

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout bounds a single outbound request.
const DefaultTimeout = 10 * time.Second

// NewCachingHTTPClient creates an HTTP client that honours Cache-Control on
// responses, such as a JWKS endpoint. An empty cacheDir keeps the cache in
// memory; otherwise it persists across restarts.
func NewCachingHTTPClient(cacheDir string, timeout time.Duration) *http.Client {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		cache = diskcache.New(cacheDir)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := httpcache.NewTransport(cache)

	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   timeout,
	}
}

// NewInMemoryCachingHTTPClient creates an HTTP client with in-memory caching only.
func NewInMemoryCachingHTTPClient() *http.Client {
	return NewCachingHTTPClient("", DefaultTimeout)
}
