// Package removal is a client for the remove.bg background removal API.
package removal

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"bgfill/pkg/logger"
	"bgfill/pkg/metrics"
)

const (
	DefaultEndpoint  = "https://api.remove.bg/v1.0/removebg"
	DefaultTimeout   = 60 * time.Second
	MaxResponseBytes = 16 << 20 // 16MB
	MaxErrorBytes    = 64 << 10

	defaultFilename = "image.png"
)

var (
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("remove.bg API unavailable: too many recent failures")

	// ErrResponseTooLarge is returned when a cutout exceeds the response limit.
	ErrResponseTooLarge = errors.New("remove.bg response too large")
)

// RemoteError is a non-2xx answer from the removal service.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return "Remove.bg API failed: " + e.Body
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// Size is the remove.bg output size parameter, "auto" when empty.
	Size string
	// BreakerFailures is the number of consecutive failures that open the
	// circuit breaker. 0 disables the breaker.
	BreakerFailures int
	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration
	// MaxResponseBytes bounds the cutout size, MaxResponseBytes when 0.
	MaxResponseBytes int64
}

type Client struct {
	endpoint string
	apiKey   string
	size     string
	maxBody  int64
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func New(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Size == "" {
		opts.Size = "auto"
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = MaxResponseBytes
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	c := &Client{
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		size:     opts.Size,
		maxBody:  opts.MaxResponseBytes,
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				ForceAttemptHTTP2:   true,
				MaxIdleConnsPerHost: 4,
			},
		},
	}

	if opts.BreakerFailures > 0 {
		threshold := uint32(opts.BreakerFailures)
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "removebg",
			MaxRequests: 1,
			Timeout:     opts.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: isServiceHealthy,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker %s: %s -> %s", name, from, to)
			},
		})
	}
	return c
}

// isServiceHealthy treats client-side rejections (bad image, bad key) as
// healthy service responses so they do not open the breaker.
func isServiceHealthy(err error) bool {
	if err == nil {
		return true
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode >= 400 && re.StatusCode < 500 && re.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// Remove uploads data and returns the cutout image bytes (PNG with alpha).
// It never retries.
func (c *Client) Remove(ctx context.Context, data []byte, filename string) ([]byte, error) {
	start := time.Now()

	var (
		out []byte
		err error
	)
	if c.breaker == nil {
		out, err = c.do(ctx, data, filename)
	} else {
		var v interface{}
		v, err = c.breaker.Execute(func() (interface{}, error) {
			return c.do(ctx, data, filename)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = ErrUnavailable
		}
		if err == nil {
			out = v.([]byte)
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, ErrUnavailable) {
			outcome = "rejected"
		}
	}
	metrics.Get().RecordRemoval(outcome, time.Since(start))
	return out, err
}

func (c *Client) do(ctx context.Context, data []byte, filename string) ([]byte, error) {
	if filename == "" {
		filename = defaultFilename
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image_file", filename)
	if err != nil {
		return nil, fmt.Errorf("build removal request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("build removal request: %w", err)
	}
	if err := mw.WriteField("size", c.size); err != nil {
		return nil, fmt.Errorf("build removal request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build removal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "image/png, application/json;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip")

	logger.Debug("Posting %d bytes to %s", len(data), c.endpoint)
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("Removal request failed: %v", err)
		return nil, fmt.Errorf("remove.bg request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := readPossiblyGzipped(resp, MaxErrorBytes)
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = resp.Status
		}
		logger.Warn("Removal service returned %d: %s", resp.StatusCode, text)
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: text}
	}

	out, err := readPossiblyGzipped(resp, c.maxBody)
	if errors.Is(err, ErrResponseTooLarge) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("read remove.bg response: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("remove.bg returned an empty body")
	}

	logger.Debug("Removal service returned %d bytes (credits charged: %s)", len(out), resp.Header.Get("X-Credits-Charged"))
	return out, nil
}

func readPossiblyGzipped(resp *http.Response, limit int64) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	}
	b, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return b[:limit], fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, limit)
	}
	return b, nil
}
