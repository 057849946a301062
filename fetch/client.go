// Package fetch downloads model assets over HTTP with a hard timeout, a
// response size cap and retry with exponential backoff. Failures carry the
// service error taxonomy so handlers can map them straight to HTTP statuses:
// timeouts to 504, upstream failures to 502, oversized assets to 413.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/internal/tlsutil"
	"github.com/BaSui01/meshflow/types"
)

// Config tunes the asset download client.
type Config struct {
	// Timeout bounds a single download attempt.
	Timeout time.Duration
	// MaxBytes caps the response size. Zero means the default cap.
	MaxBytes int64
	// UserAgent is sent with every request.
	UserAgent string
	// Retry overrides the default retry policy.
	Retry *RetryPolicy
}

const (
	// DefaultTimeout matches the upstream timeout the service has always
	// used for GLB downloads.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBytes caps assets at 64 MiB.
	DefaultMaxBytes = 64 << 20
	defaultUA       = "meshflow/1.0"
)

// Client downloads assets.
type Client struct {
	cfg     Config
	client  *http.Client
	retryer Retryer
	logger  *zap.Logger
}

// NewClient builds a download client with hardened TLS.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUA
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		retryer: NewBackoffRetryer(cfg.Retry, logger),
		logger:  logger.With(zap.String("component", "fetch")),
	}
}

// ValidateURL checks that raw is an absolute http or https URL.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid glb_url: %v", err)).
			WithHTTPStatus(400)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("invalid glb_url: scheme %q is not supported, use http or https", u.Scheme)).
			WithHTTPStatus(400)
	}
	if u.Host == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid glb_url: missing host").
			WithHTTPStatus(400)
	}
	return u, nil
}

// Fetch downloads the asset at rawURL, honoring ctx, the configured timeout
// and the size cap. Transient upstream failures are retried.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := DoWithResultTyped[[]byte](c.retryer, ctx, func() ([]byte, error) {
		return c.fetchOnce(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("asset fetched",
		zap.String("host", u.Host),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return data, nil
}

func (c *Client) fetchOnce(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("build request: %v", err)).
			WithHTTPStatus(400)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "model/gltf-binary, application/octet-stream, */*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.transportError(u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("failed to fetch GLB file: upstream returned status %d", resp.StatusCode)).
			WithHTTPStatus(502).
			WithSource(u.Host).
			WithRetryable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
	}

	// Read one byte past the cap so truncation is detectable.
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes+1))
	if err != nil {
		return nil, c.transportError(u, err)
	}
	if int64(len(data)) > c.cfg.MaxBytes {
		return nil, types.NewError(types.ErrAssetTooLarge,
			fmt.Sprintf("GLB file exceeds the %d byte limit", c.cfg.MaxBytes)).
			WithHTTPStatus(413).
			WithSource(u.Host)
	}
	return data, nil
}

// transportError classifies a transport failure: timeouts map to 504 and
// are not retried (the attempt already consumed the full window), anything
// else maps to 502 and is worth one more try.
func (c *Client) transportError(u *url.URL, err error) error {
	if isTimeout(err) {
		return types.NewError(types.ErrFetchTimeout, "timeout while fetching GLB file from URL").
			WithHTTPStatus(504).
			WithSource(u.Host).
			WithCause(err)
	}
	return types.NewError(types.ErrUpstreamError, "failed to fetch GLB file from URL").
		WithHTTPStatus(502).
		WithSource(u.Host).
		WithRetryable(true).
		WithCause(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
