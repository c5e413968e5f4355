// Package apiclient is the HTTP client for the cafe backend REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/logging"
)

const (
	defaultTimeout  = 15 * time.Second
	maxErrorBody    = 64 << 10
	requestIDHeader = "X-Request-ID"
)

// TokenSource returns a bearer token for the current session, or "" to send
// the request unauthenticated.
type TokenSource func(ctx context.Context) (string, error)

// ResponseCache stores raw GET response bodies.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Token      TokenSource
	Cache      ResponseCache
	CacheTTL   time.Duration
	Metrics    *Metrics
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	cache      ResponseCache
	cacheTTL   time.Duration
	metrics    *Metrics
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		token:      cfg.Token,
		cache:      cfg.Cache,
		cacheTTL:   cfg.CacheTTL,
		metrics:    cfg.Metrics,
	}, nil
}

// doJSON sends body as JSON (when non-nil) and decodes a 2xx response into out.
func (c *Client) doJSON(ctx context.Context, method, route, path string, body, out any) error {
	var (
		reader  io.Reader
		payload []byte
	)
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, route, err)
		}
		payload = encoded
		reader = bytes.NewReader(encoded)
	}

	respBody, err := c.send(ctx, method, route, path, "application/json", reader, payload)
	if err != nil {
		return err
	}
	return decodeInto(method, path, respBody, out)
}

// send performs the request and returns the body of a 2xx response.
// logPayload is only used for debug logging and may be nil.
func (c *Client) send(ctx context.Context, method, route, path, contentType string, body io.Reader, logPayload []byte) ([]byte, error) {
	requestID := uuid.New().String()
	logger := log.With().
		Str("component", "apiclient").
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Logger()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve auth token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if logPayload != nil {
		logger.Debug().Interface("body", logging.RedactJSON(logPayload)).Msg("API request")
	} else {
		logger.Debug().Msg("API request")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observe(method, route, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		logger.Warn().Err(err).Msg("API request failed")
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()
	c.metrics.observe(method, route, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Detail: extractDetail(raw),
		}
		event := logger.Warn()
		if resp.StatusCode == http.StatusNotFound {
			event = logger.Debug()
		}
		event.Int("status", resp.StatusCode).Str("detail", apiErr.Detail).Msg("API request rejected")
		return nil, apiErr
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w: %v", method, path, ErrUnavailable, err)
	}
	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API request completed")
	return respBody, nil
}

// getCached serves a GET through the response cache when one is configured.
func (c *Client) getCached(ctx context.Context, route, path string, out any) error {
	if c.cache == nil {
		return c.doJSON(ctx, http.MethodGet, route, path, nil, out)
	}

	key := cacheKey(path)
	if body, ok := c.cache.Get(ctx, key); ok {
		if err := decodeInto(http.MethodGet, path, body, out); err == nil {
			return nil
		}
		c.cache.Delete(ctx, key)
	}

	body, err := c.send(ctx, http.MethodGet, route, path, "", nil, nil)
	if err != nil {
		return err
	}
	if err := decodeInto(http.MethodGet, path, body, out); err != nil {
		return err
	}
	c.cache.Set(ctx, key, body, c.cacheTTL)
	return nil
}

func (c *Client) invalidate(ctx context.Context, paths ...string) {
	if c.cache == nil {
		return
	}
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		keys = append(keys, cacheKey(p))
	}
	c.cache.Delete(ctx, keys...)
}

func cacheKey(path string) string {
	return "GET " + path
}

func decodeInto(method, path string, body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func escape(segment string) string {
	return url.PathEscape(segment)
}
