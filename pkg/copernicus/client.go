// Package copernicus wraps the Copernicus Data Space catalog and
// processing endpoints for Sentinel-2 L2A imagery.
package copernicus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/terralens/landcover-cli/internal/resilience"
)

// Client defines the Copernicus Data Space operations used by this
// application.
type Client interface {
	// SearchScenes queries the scene catalog for acquisitions that
	// intersect the bounding box within the time window.
	SearchScenes(ctx context.Context, q SearchQuery) ([]Scene, error)
	// FetchChip requests one band of one scene resampled onto a
	// width x height grid covering the bounding box.
	FetchChip(ctx context.Context, req ChipRequest) (*Chip, error)
}

// SearchQuery describes a catalog search. BBox is minLon, minLat,
// maxLon, maxLat in WGS84. MaxCloudCover is a percentage.
type SearchQuery struct {
	BBox          [4]float64
	From          time.Time
	To            time.Time
	MaxCloudCover float64
}

// Scene is one catalog entry. CloudCover is a percentage.
type Scene struct {
	ID         string
	AcquiredAt time.Time
	CloudCover float64
}

// ChipRequest asks the processing endpoint for a single-band raster.
type ChipRequest struct {
	SceneID string
	Band    string
	BBox    [4]float64
	Width   int
	Height  int
}

// Chip is a row-major raster starting at the northwest corner.
// Mask marks which cells carry usable data; a nil mask means all cells
// are usable.
type Chip struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Values []float64 `json:"values"`
	Mask   []bool    `json:"mask"`
}

// Option configures the Copernicus client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithCollection overrides the default sentinel-2-l2a collection.
func WithCollection(id string) Option {
	return func(c *httpClient) {
		c.collection = id
	}
}

// WithRateLimit overrides the default request rate (5 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey     string
	baseURL    string
	collection string
	http       *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// NewClient creates a new Copernicus Data Space client. By default,
// API calls are throttled to 5 req/s and retried with exponential
// backoff on transient failures; repeated failures open a circuit
// breaker that rejects calls until the service recovers.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:     apiKey,
		baseURL:    "https://sh.dataspace.copernicus.eu",
		collection: "sentinel-2-l2a",
		limiter:    rate.NewLimiter(5, 5),
		retry:      resilience.DefaultRetryConfig(),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("copernicus", "post")
	}
	c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		ShouldTrip: resilience.IsTransient,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("copernicus: circuit state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

type postResult struct {
	body   []byte
	status int
}

// post executes a JSON POST through the circuit breaker, retrying
// transient failures (429, 5xx, network errors) with exponential
// backoff. Non-retryable statuses are returned to the caller unchanged
// so each operation can report its own failure.
func (c *httpClient) post(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	res, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (postResult, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (postResult, error) {
			return c.postOnce(ctx, url, payload)
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return res.body, res.status, nil
}

// postOnce performs a single attempt. The request is rebuilt on every
// attempt because a consumed body cannot be resent.
func (c *httpClient) postOnce(ctx context.Context, url string, payload []byte) (postResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return postResult{}, eris.Wrap(err, "copernicus: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return postResult{}, err
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return postResult{}, eris.Wrap(readErr, "copernicus: read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return postResult{}, resilience.NewTransientError(
			eris.Errorf("copernicus: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode)
	}
	return postResult{body: body, status: resp.StatusCode}, nil
}

type searchRequest struct {
	Collections []string                      `json:"collections"`
	BBox        [4]float64                    `json:"bbox"`
	Datetime    string                        `json:"datetime"`
	Limit       int                           `json:"limit"`
	Query       map[string]map[string]float64 `json:"query,omitempty"`
}

type searchResponse struct {
	Features []searchFeature `json:"features"`
}

type searchFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Datetime   time.Time `json:"datetime"`
		CloudCover float64   `json:"eo:cloud_cover"`
	} `json:"properties"`
}

func (c *httpClient) SearchScenes(ctx context.Context, q SearchQuery) ([]Scene, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "copernicus: rate limit")
	}

	sr := searchRequest{
		Collections: []string{c.collection},
		BBox:        q.BBox,
		Datetime: fmt.Sprintf("%s/%s",
			q.From.UTC().Format(time.RFC3339),
			q.To.UTC().Format(time.RFC3339)),
		Limit: 250,
	}
	if q.MaxCloudCover > 0 {
		sr.Query = map[string]map[string]float64{
			"eo:cloud_cover": {"lte": q.MaxCloudCover},
		}
	}

	payload, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "copernicus: marshal search request")
	}

	body, statusCode, err := c.post(ctx, c.baseURL+"/api/v1/catalog/1.0.0/search", payload)
	if err != nil {
		return nil, eris.Wrap(err, "copernicus: search request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("copernicus: search unexpected status %d: %s", statusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "copernicus: unmarshal search response")
	}

	scenes := make([]Scene, 0, len(result.Features))
	for _, f := range result.Features {
		scenes = append(scenes, Scene{
			ID:         f.ID,
			AcquiredAt: f.Properties.Datetime,
			CloudCover: f.Properties.CloudCover,
		})
	}
	return scenes, nil
}

type chipRequest struct {
	SceneID string     `json:"scene_id"`
	Band    string     `json:"band"`
	BBox    [4]float64 `json:"bbox"`
	Width   int        `json:"width"`
	Height  int        `json:"height"`
}

func (c *httpClient) FetchChip(ctx context.Context, req ChipRequest) (*Chip, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "copernicus: rate limit")
	}

	payload, err := json.Marshal(chipRequest{
		SceneID: req.SceneID,
		Band:    req.Band,
		BBox:    req.BBox,
		Width:   req.Width,
		Height:  req.Height,
	})
	if err != nil {
		return nil, eris.Wrap(err, "copernicus: marshal chip request")
	}

	body, statusCode, err := c.post(ctx, c.baseURL+"/api/v1/process", payload)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("copernicus: chip request %s %s", req.SceneID, req.Band))
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("copernicus: chip unexpected status %d: %s", statusCode, string(body))
	}

	var chip Chip
	if err := json.Unmarshal(body, &chip); err != nil {
		return nil, eris.Wrap(err, "copernicus: unmarshal chip response")
	}
	if chip.Mask != nil && len(chip.Mask) != len(chip.Values) {
		return nil, eris.Errorf("copernicus: chip mask length %d does not match values length %d",
			len(chip.Mask), len(chip.Values))
	}
	return &chip, nil
}
