package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	neturl "net/url"
	"time"
)

// ErrEmptyBody is returned when the server answers with an empty page.
var ErrEmptyBody = errors.New("fetch: empty response body")

// HTTPError reports a response with a failing status code.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetching %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Page is a retrieved HTML page.
type Page struct {
	URL         string    `json:"url"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Charset     string    `json:"charset"`
	Body        []byte    `json:"body"`
	HTML        string    `json:"-"`
	FetchedAt   time.Time `json:"fetched_at"`
	Attempts    int       `json:"attempts"`
	FromCache   bool      `json:"-"`
}

// Fetcher retrieves pages.
type Fetcher struct {
	config Config
	client HTTPClient
	cache  *DiskCache
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client uses http.DefaultClient
// wrapped in the configured rate limit; a nil logger discards log output.
func NewFetcher(config Config, client HTTPClient, logger *slog.Logger) (*Fetcher, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch config: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if config.RateLimit > 0 {
		client = NewRateLimitedHTTPClient(client, config.RateLimit)
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	f := &Fetcher{config: config, client: client, logger: logger}
	if config.CacheDir != "" {
		ttl := config.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		cache, err := NewDiskCache(config.CacheDir, ttl)
		if err != nil {
			return nil, err
		}
		if removed, err := cache.Prune(); err != nil {
			logger.Warn("cache not pruned", "dir", config.CacheDir, "error", err)
		} else if removed > 0 {
			logger.Debug("pruned cache", "dir", config.CacheDir, "removed", removed)
		}
		f.cache = cache
	}
	return f, nil
}

// FetchDefault retrieves the page named by the configured base URL and path.
func (f *Fetcher) FetchDefault(ctx context.Context) (*Page, error) {
	target, err := f.config.URL()
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, target)
}

// Fetch retrieves url, retrying network errors and transient statuses with
// exponential backoff, and decodes the body to UTF-8.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if f.cache != nil {
		if page, ok := f.cache.Get(url); ok {
			if err := f.decode(page); err != nil {
				return nil, err
			}
			page.FromCache = true
			f.logger.Info("using cached page", "url", url, "fetched_at", page.FetchedAt)
			return page, nil
		}
	}

	if _, err := neturl.ParseRequestURI(url); err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", url, err)
	}

	var lastErr error
	for attempt := 0; attempt < f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := f.backoff(attempt - 1)
			f.logger.Warn("retrying request", "url", url, "attempt", attempt+1, "wait", wait, "error", lastErr)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		page, err := f.attempt(ctx, url)
		if err == nil {
			page.Attempts = attempt + 1
			if err := f.decode(page); err != nil {
				return nil, err
			}
			f.logger.Info("fetched page", "url", url, "bytes", len(page.Body), "charset", page.Charset, "attempts", page.Attempts)
			if f.cache != nil {
				if err := f.cache.Set(url, page); err != nil {
					f.logger.Warn("page not cached", "url", url, "error", err)
				}
			}
			return page, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", f.config.MaxRetries, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Charset", "ISO-8859-1,utf-8;q=0.7,*;q=0.3")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	return &Page{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (f *Fetcher) decode(page *Page) error {
	text, name, err := decodeBody(page.Body, page.ContentType, f.config.Charset)
	if err != nil {
		return err
	}
	page.HTML = text
	page.Charset = name
	return nil
}

// backoff returns the wait after the given failed attempt (0-based).
func (f *Fetcher) backoff(attempt int) time.Duration {
	seconds := f.config.BackoffFactor * math.Pow(2, float64(attempt))
	return time.Duration(seconds * float64(time.Second))
}

func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return !errors.Is(err, ErrEmptyBody)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
