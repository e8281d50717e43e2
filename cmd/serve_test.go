package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terralens/landcover-cli/internal/model"
	"github.com/terralens/landcover-cli/internal/store"
)

type fakeAnalyzer struct {
	result *model.AnalysisResult
	err    error
	gotReq model.AOIRequest
}

func (f *fakeAnalyzer) Run(_ context.Context, req model.AOIRequest) (*model.AnalysisResult, error) {
	f.gotReq = req
	return f.result, f.err
}

func postAnalyze(t *testing.T, handler http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/aoi/analyze", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	router := buildRouter(&fakeAnalyzer{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Analyze(t *testing.T) {
	fake := &fakeAnalyzer{
		result: &model.AnalysisResult{
			Summary: model.AnalysisSummary{
				Name:         "hyderabad-lake",
				TotalAreaSqM: 4_990_000,
				WaterPct:     42.5,
			},
		},
	}
	router := buildRouter(fake, nil)

	payload, _ := json.Marshal(map[string]any{
		"name":      "hyderabad-lake",
		"latitude":  17.385,
		"longitude": 78.4867,
		"area_sq_m": 5_000_000,
	})
	rr := postAnalyze(t, router, payload)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hyderabad-lake", fake.gotReq.Name)
	assert.InDelta(t, 5_000_000, fake.gotReq.AreaSqM, 1e-9)

	var resp model.AnalysisResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.InDelta(t, 4_990_000, resp.Summary.TotalAreaSqM, 1e-6)
	assert.InDelta(t, 42.5, resp.Summary.WaterPct, 1e-9)
}

func TestRouter_Analyze_InvalidBody(t *testing.T) {
	router := buildRouter(&fakeAnalyzer{}, nil)

	rr := postAnalyze(t, router, []byte("not json"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestRouter_Analyze_KindMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", model.Validationf("latitude 95 outside [-90, 90]"), http.StatusBadRequest},
		{"data unavailable", model.Unavailablef("no scenes for window"), http.StatusNotFound},
		{"timeout", model.Timeoutf("search deadline exceeded"), http.StatusGatewayTimeout},
		{"internal", eris.New("grid mismatch"), http.StatusInternalServerError},
	}

	payload, _ := json.Marshal(map[string]any{
		"name": "x", "latitude": 1.0, "longitude": 1.0, "area_sq_m": 1000.0,
	})

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := buildRouter(&fakeAnalyzer{err: tc.err}, nil)
			rr := postAnalyze(t, router, payload)

			assert.Equal(t, tc.want, rr.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, string(model.KindOf(tc.err)), resp["kind"])
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestRouter_Runs_NilStore(t *testing.T) {
	router := buildRouter(&fakeAnalyzer{}, nil)

	for _, path := range []string{"/api/runs", "/api/runs/abc"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestRouter_Runs_ListAndGet(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(t.TempDir() + "/runs.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateRun(ctx, model.AOIRequest{
		Name: "hyderabad-lake", Latitude: 17.385, Longitude: 78.4867, AreaSqM: 5_000_000,
	})
	require.NoError(t, err)

	router := buildRouter(&fakeAnalyzer{}, st)

	req := httptest.NewRequest(http.MethodGet, "/api/runs?name=hyderabad-lake", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	req = httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID, nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, model.RunStatusQueued, got.Status)

	req = httptest.NewRequest(http.MethodGet, "/api/runs/nonexistent", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestKindStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, kindStatus(model.KindValidation))
	assert.Equal(t, http.StatusNotFound, kindStatus(model.KindDataUnavailable))
	assert.Equal(t, http.StatusGatewayTimeout, kindStatus(model.KindTimeout))
	assert.Equal(t, http.StatusInternalServerError, kindStatus(model.KindInternal))
	assert.Equal(t, http.StatusInternalServerError, kindStatus(""))
}
