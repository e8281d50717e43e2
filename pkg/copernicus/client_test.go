package copernicus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terralens/landcover-cli/internal/resilience"
)

// fastRetry keeps retry tests quick.
func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond})
}

func testQuery() SearchQuery {
	return SearchQuery{
		BBox:          [4]float64{78.47, 17.37, 78.50, 17.40},
		From:          time.Date(2023, 6, 16, 0, 0, 0, 0, time.UTC),
		To:            time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		MaxCloudCover: 40,
	}
}

func TestSearchScenes_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "/api/v1/catalog/1.0.0/search", r.URL.Path)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"sentinel-2-l2a"}, req.Collections)
		assert.Equal(t, "2023-06-16T00:00:00Z/2024-06-15T00:00:00Z", req.Datetime)
		require.Contains(t, req.Query, "eo:cloud_cover")
		assert.InDelta(t, 40.0, req.Query["eo:cloud_cover"]["lte"], 1e-9)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"features":[
			{"id":"S2A_20240601","properties":{"datetime":"2024-06-01T10:00:00Z","eo:cloud_cover":12.5}},
			{"id":"S2B_20240528","properties":{"datetime":"2024-05-28T10:10:00Z","eo:cloud_cover":3.0}}
		]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	scenes, err := client.SearchScenes(context.Background(), testQuery())

	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, "S2A_20240601", scenes[0].ID)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), scenes[0].AcquiredAt)
	assert.InDelta(t, 12.5, scenes[0].CloudCover, 1e-9)
}

func TestSearchScenes_EmptyCatalog(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	scenes, err := client.SearchScenes(context.Background(), testQuery())

	require.NoError(t, err)
	assert.Empty(t, scenes)
}

func TestSearchScenes_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.SearchScenes(context.Background(), testQuery())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSearchScenes_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.SearchScenes(context.Background(), testQuery())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestSearchScenes_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.SearchScenes(ctx, testQuery())

	require.Error(t, err)
}

func TestSearchScenes_RetryOn429(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"features":[{"id":"S2A_1","properties":{"datetime":"2024-06-01T10:00:00Z","eo:cloud_cover":5}}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), fastRetry())
	scenes, err := client.SearchScenes(context.Background(), testQuery())

	require.NoError(t, err)
	assert.Len(t, scenes, 1)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSearchScenes_RetryExhausted(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`service unavailable`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), fastRetry())
	_, err := client.SearchScenes(context.Background(), testQuery())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(3), attempts.Load()) // 3 attempts total
}

func TestFetchChip_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/process", r.URL.Path)

		var req chipRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "S2A_20240601", req.SceneID)
		assert.Equal(t, "B08", req.Band)
		assert.Equal(t, 2, req.Width)
		assert.Equal(t, 2, req.Height)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"width":2,"height":2,"values":[0.1,0.2,0.3,0.4],"mask":[true,true,false,true]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	chip, err := client.FetchChip(context.Background(), ChipRequest{
		SceneID: "S2A_20240601",
		Band:    "B08",
		BBox:    [4]float64{78.47, 17.37, 78.50, 17.40},
		Width:   2,
		Height:  2,
	})

	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, chip.Values)
	assert.Equal(t, []bool{true, true, false, true}, chip.Mask)
}

func TestFetchChip_NoMask(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"width":1,"height":2,"values":[0.5,0.6]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	chip, err := client.FetchChip(context.Background(), ChipRequest{SceneID: "s", Band: "B03", Width: 1, Height: 2})

	require.NoError(t, err)
	assert.Nil(t, chip.Mask)
	assert.Len(t, chip.Values, 2)
}

func TestFetchChip_MaskLengthMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"width":2,"height":1,"values":[0.5,0.6],"mask":[true]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.FetchChip(context.Background(), ChipRequest{SceneID: "s", Band: "B03", Width: 2, Height: 1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mask length")
}

func TestFetchChip_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such scene"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.FetchChip(context.Background(), ChipRequest{SceneID: "missing", Band: "B02", Width: 1, Height: 1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient("my-key")
	hc := c.(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, "https://sh.dataspace.copernicus.eu", hc.baseURL)
	assert.Equal(t, "sentinel-2-l2a", hc.collection)
	assert.NotNil(t, hc.limiter)
	assert.NotNil(t, hc.http)
	assert.Equal(t, 30*time.Second, hc.http.Timeout)
	assert.Equal(t, 3, hc.retry.MaxAttempts)
	assert.NotNil(t, hc.retry.OnRetry)
	assert.NotNil(t, hc.breaker)
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()
	customClient := &http.Client{}
	c := NewClient("test-key", WithHTTPClient(customClient))
	hc := c.(*httpClient)
	assert.Equal(t, customClient, hc.http)
}

func TestWithCollection(t *testing.T) {
	t.Parallel()
	c := NewClient("test-key", WithCollection("sentinel-2-l1c"))
	hc := c.(*httpClient)
	assert.Equal(t, "sentinel-2-l1c", hc.collection)
}

func TestWithRateLimitDisable(t *testing.T) {
	t.Parallel()
	c := NewClient("test-key", WithRateLimit(0))
	hc := c.(*httpClient)
	assert.Nil(t, hc.limiter)
}

func TestBreakerOpensAfterRepeatedOutage(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL),
		WithRetry(resilience.RetryConfig{MaxAttempts: 6, InitialBackoff: time.Millisecond}))

	_, err := client.SearchScenes(context.Background(), testQuery())
	require.Error(t, err)

	// Five transient failures open the breaker; the sixth attempt and any
	// later call are rejected without reaching the server.
	assert.Equal(t, int32(5), attempts.Load())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	_, err = client.SearchScenes(context.Background(), testQuery())
	require.Error(t, err)
	assert.Equal(t, int32(5), attempts.Load())
}
