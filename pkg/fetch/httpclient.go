package fetch

import (
	"net/http"
	"sync"
	"time"
)

// HTTPClient is an interface matching the Do method of *http.Client.
// This allows injection of mock clients for testing and custom transports.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RateLimitedHTTPClient wraps an HTTPClient and enforces a minimum interval
// between requests.
type RateLimitedHTTPClient struct {
	underlying      HTTPClient
	requestInterval time.Duration
	lastRequest     time.Time
	mu              sync.Mutex
}

// NewRateLimitedHTTPClient creates a rate-limited HTTP client that enforces
// the given minimum interval between requests.
func NewRateLimitedHTTPClient(underlying HTTPClient, requestInterval time.Duration) *RateLimitedHTTPClient {
	return &RateLimitedHTTPClient{
		underlying:      underlying,
		requestInterval: requestInterval,
	}
}

// Do waits for the rate limiter, or for the request context to end, then
// sends the request.
func (client *RateLimitedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	client.mu.Lock()
	var wait time.Duration
	if !client.lastRequest.IsZero() {
		if elapsed := time.Since(client.lastRequest); elapsed < client.requestInterval {
			wait = client.requestInterval - elapsed
		}
	}
	// Reserve the slot before sleeping so concurrent callers queue behind it.
	client.lastRequest = time.Now().Add(wait)
	client.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	return client.underlying.Do(req)
}
