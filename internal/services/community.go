package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/audiocache/internal/models"
	"github.com/desertthunder/audiocache/internal/shared"
)

// AvailabilityState is the cached outcome of the last handshake.
type AvailabilityState struct {
	Checked   bool
	Available bool
	Expiry    time.Time
}

// CommunityOptions configures a [CommunityClient].
type CommunityOptions struct {
	BaseURL string
	APIKey  string
	// Timeout bounds every call. Defaults to 2s.
	Timeout time.Duration
	// Window is how long a handshake result is trusted. Defaults to one hour.
	Window     time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// CommunityClient talks to the shared community cache service.
//
// Lookups never fail: transport errors, bad statuses and malformed bodies all
// degrade to an empty result. The service is probed at most once per window.
type CommunityClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	window     time.Duration
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time

	mu    sync.Mutex
	state AvailabilityState
}

// NewCommunityClient creates a client for the community cache at opts.BaseURL.
func NewCommunityClient(opts CommunityOptions) *CommunityClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Window <= 0 {
		opts.Window = time.Hour
	}
	return &CommunityClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		timeout:    opts.Timeout,
		window:     opts.Window,
		httpClient: defaultClient(opts.HTTPClient),
		logger:     defaultLogger(opts.Logger, "community"),
		now:        time.Now,
	}
}

// Availability returns the cached handshake state.
func (c *CommunityClient) Availability() AvailabilityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handshake returns nil when the service is usable and [shared.ErrUnavailable] otherwise.
//
// A 418 response means the service disabled this client. A transport failure is treated
// the same way. Either result is cached for the window, so no further probe is sent until it expires.
func (c *CommunityClient) Handshake(ctx context.Context) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: no community url configured", shared.ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUnavailable, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.state.Checked || !now.Before(c.state.Expiry) {
		c.state = AvailabilityState{Checked: true, Available: c.probe(ctx), Expiry: now.Add(c.window)}
	}

	if !c.state.Available {
		return fmt.Errorf("%w: until %s", shared.ErrUnavailable, c.state.Expiry.Format(time.RFC3339))
	}
	return nil
}

func (c *CommunityClient) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := get(ctx, c.httpClient, c.baseURL+"/handshake", nil)
	if err != nil {
		c.logger.Warn("handshake failed, skipping community tier", "error", err, "window", c.window)
		return false
	}
	if resp.StatusCode == http.StatusTeapot {
		c.logger.Warn("community service disabled this client", "window", c.window)
		return false
	}
	c.logger.Debug("handshake succeeded", "status", resp.StatusCode)
	return true
}

// LookupTrack asks the community cache for q. Queries that are invalid, local or
// provider URIs are never sent. Any failure yields [models.Empty].
func (c *CommunityClient) LookupTrack(ctx context.Context, q models.Query) models.LoadResult {
	if !q.Valid() || q.IsLocal() || q.IsProviderURI() {
		return models.Empty()
	}
	if err := c.Handshake(ctx); err != nil {
		return models.Empty()
	}

	params := url.Values{"query": {q.Canonical}}
	return c.lookup(ctx, "/queries?"+params.Encode(), q.Canonical)
}

// LookupMetadata asks the community cache for a playable result matching a provider track's title and author.
func (c *CommunityClient) LookupMetadata(ctx context.Context, title, author string) models.LoadResult {
	if strings.TrimSpace(title) == "" {
		return models.Empty()
	}
	if err := c.Handshake(ctx); err != nil {
		return models.Empty()
	}

	params := url.Values{"title": {title}, "author": {author}}
	return c.lookup(ctx, "/queries/metadata?"+params.Encode(), title+" - "+author)
}

func (c *CommunityClient) lookup(ctx context.Context, path, label string) models.LoadResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := get(ctx, c.httpClient, c.baseURL+path, nil)
	if err != nil {
		c.logger.Debug("community lookup failed", "query", label, "error", err)
		return models.Empty()
	}
	if !resp.ok() {
		c.logger.Debug("community lookup rejected", "query", label, "status", resp.StatusCode)
		return models.Empty()
	}
	if pt := resp.Header.Get("X-Process-Time"); pt != "" {
		c.logger.Debug("community lookup", "query", label, "process_time", pt)
	}

	result, err := models.ParseLoadResult(resp.Body)
	if err != nil {
		c.logger.Debug("malformed community response treated as empty", "query", label, "error", err)
		return models.Empty()
	}
	return result
}

// Contribute submits a provider-obtained result for q to the community cache.
//
// It is a no-op without an API key, for results that are not cacheable, and for
// queries that are local or provider URIs.
func (c *CommunityClient) Contribute(ctx context.Context, result models.LoadResult, q models.Query) error {
	if c.apiKey == "" || !result.Cacheable() || !q.Valid() || q.IsLocal() || q.IsProviderURI() {
		return nil
	}
	if err := c.Handshake(ctx); err != nil {
		return err
	}

	body, err := result.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode contribution: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{"query": {q.Canonical}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/queries?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := do(c.httpClient, req)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return fmt.Errorf("%w: contribute returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	return nil
}
