// Package fetch retrieves the published HTML of the constitution over HTTP,
// with retries, rate limiting, charset decoding and an optional disk cache.
package fetch

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the host that publishes the constitution.
const DefaultBaseURL = "https://www.planalto.gov.br"

// DefaultPath is the path of the consolidated constitution page.
const DefaultPath = "/ccivil_03/constituicao/constituicao.htm"

// DefaultMaxRetries is the default number of attempts per request.
const DefaultMaxRetries = 3

// DefaultTimeout is the default per-attempt timeout.
const DefaultTimeout = 30 * time.Second

// DefaultBackoffFactor is the default multiplier, in seconds, of the
// exponential wait between attempts.
const DefaultBackoffFactor = 1.0

// DefaultRateLimit is the default minimum interval between HTTP requests.
const DefaultRateLimit = time.Second

// DefaultCacheTTL is the default time-to-live for cached pages.
const DefaultCacheTTL = 24 * time.Hour

// DefaultUserAgent identifies the client to the publisher.
const DefaultUserAgent = "Mozilla/5.0 (compatible; carta/1.0; +https://github.com/coolbeans/carta)"

// maxBodySize bounds the size of a fetched page.
const maxBodySize = 32 << 20

// Config holds configuration for page retrieval.
type Config struct {
	// BaseURL and Path are joined to form the page URL.
	BaseURL string `yaml:"base_url"`
	Path    string `yaml:"path"`

	// MaxRetries is the total number of attempts per request.
	MaxRetries int `yaml:"max_retries"`

	// Timeout bounds each attempt.
	Timeout time.Duration `yaml:"timeout"`

	// BackoffFactor scales the wait before a retry: factor * 2^attempt seconds.
	BackoffFactor float64 `yaml:"backoff_factor"`

	// RateLimit is the minimum interval between HTTP requests.
	RateLimit time.Duration `yaml:"rate_limit"`

	// CacheDir is the directory for cached pages. If empty, caching is disabled.
	CacheDir string `yaml:"cache_dir"`

	// CacheTTL is how long a cached page stays valid.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Charset forces the page encoding (an HTML encoding label such as
	// "iso-8859-1"). If empty, the encoding is detected.
	Charset string `yaml:"charset"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent"`
}

// DefaultConfig returns a Config with the publisher's defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Path:          DefaultPath,
		MaxRetries:    DefaultMaxRetries,
		Timeout:       DefaultTimeout,
		BackoffFactor: DefaultBackoffFactor,
		RateLimit:     DefaultRateLimit,
		CacheTTL:      DefaultCacheTTL,
		UserAgent:     DefaultUserAgent,
	}
}

// URL returns the page URL formed by BaseURL and Path.
func (c Config) URL() (string, error) {
	base, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("invalid base URL %q: scheme must be http or https", c.BaseURL)
	}
	ref, err := url.Parse(strings.TrimLeft(c.Path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", c.Path, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.BackoffFactor < 0 {
		return fmt.Errorf("backoff factor cannot be negative, got %g", c.BackoffFactor)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %s", c.RateLimit)
	}
	if _, err := c.URL(); err != nil {
		return err
	}
	return nil
}
