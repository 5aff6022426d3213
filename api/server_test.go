package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beachwatch/go-crowd/engine"
	"github.com/beachwatch/go-crowd/internal/testimg"
	"github.com/beachwatch/go-crowd/score"
	"github.com/beachwatch/go-crowd/store"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestServer(t *testing.T, withStore bool) (*Server, *store.Store) {
	t.Helper()

	eng, err := engine.NewBuilder().WithLogger(quietLogger()).Build()
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	var st *store.Store
	if withStore {
		st, err = store.Open(filepath.Join(t.TempDir(), "analyses.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
	}

	return NewServer(eng, st, quietLogger()), st
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testimg.New(w, h).Image()))
	return buf.Bytes()
}

func seedRecord(id, location string, ts time.Time) *engine.Record {
	return &engine.Record{
		ID:          id,
		Location:    location,
		Timestamp:   ts,
		Width:       640,
		Height:      480,
		PersonCount: 2,
		Method:      engine.MethodDetector,
		Busyness:    score.Busyness{Density: 0.1, Score: 3, Level: score.LevelQuiet},
		AreaSqm:     2000,
		DurationMS:  12,
	}
}

func TestAnalyzeRawBody(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/analyze?location=bondi&area_sqm=2000",
		bytes.NewReader(pngBytes(t, 64, 48)))
	req.Header.Set("Content-Type", "image/png")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	// Without a detector the engine falls through to the heuristic.
	assert.Equal(t, engine.StatusFallbackSuccess, resp.Status)
	require.NotNil(t, resp.Record)
	assert.Equal(t, "bondi", resp.Record.Location)
	assert.Equal(t, engine.MethodHeuristic, resp.Record.Method)
	assert.True(t, resp.Record.FallbackUsed)
	assert.NotEmpty(t, resp.Record.ID)
	assert.Equal(t, 64, resp.Record.Width)
	assert.Equal(t, 48, resp.Record.Height)
}

func TestAnalyzeMultipart(t *testing.T) {
	srv, _ := newTestServer(t, false)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "frame.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes(t, 64, 48))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("location", "manly"))
	require.NoError(t, mw.WriteField("area_sqm", "1500"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Record)
	assert.Equal(t, "manly", resp.Record.Location)
	assert.InDelta(t, 1500, resp.Record.AreaSqm, 1e-9)
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, false)

	tests := []struct {
		name string
		url  string
		body []byte
	}{
		{"missing area", "/analyze?location=bondi", pngBytes(t, 32, 32)},
		{"unparseable area", "/analyze?area_sqm=abc", pngBytes(t, 32, 32)},
		{"zero area", "/analyze?area_sqm=0", pngBytes(t, 32, 32)},
		{"undecodable image", "/analyze?area_sqm=2000", []byte("not an image")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.url, bytes.NewReader(tt.body))
			rr := httptest.NewRecorder()
			srv.Router().ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestAnalyzeCanceledRequest(t *testing.T) {
	srv, _ := newTestServer(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/analyze?area_sqm=2000",
		bytes.NewReader(pngBytes(t, 32, 32))).WithContext(ctx)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, statusClientClosedRequest, rr.Code)
}

func TestAnalyzePersistsRecord(t *testing.T) {
	srv, st := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodPost, "/analyze?location=bondi&area_sqm=2000",
		bytes.NewReader(pngBytes(t, 64, 48)))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Record)

	stored, err := st.Recent(context.Background(), "bondi", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, resp.Record.ID, stored[0].ID)
}

func TestResultsWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/results", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestResultsFiltersAndLimits(t *testing.T) {
	srv, st := newTestServer(t, true)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.Insert(ctx, seedRecord("rec-1", "bondi", base)))
	require.NoError(t, st.Insert(ctx, seedRecord("rec-2", "bondi", base.Add(time.Hour))))
	require.NoError(t, st.Insert(ctx, seedRecord("rec-3", "manly", base.Add(2*time.Hour))))

	get := func(url string) (*httptest.ResponseRecorder, resultsResponse) {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)
		var resp resultsResponse
		if rr.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		}
		return rr, resp
	}

	rr, resp := get("/results?location=bondi")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "rec-2", resp.Results[0].ID)

	rr, resp = get("/results")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, resp.Count)

	rr, resp = get("/results?limit=1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "rec-3", resp.Results[0].ID)

	rr, _ = get("/results?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestResultsEmptyStore(t *testing.T) {
	srv, _ := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, "/results", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp resultsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Results)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "none", body["backend"])
}

func TestStatsTracksAnalyses(t *testing.T) {
	srv, _ := newTestServer(t, false)

	post := httptest.NewRequest(http.MethodPost, "/analyze?area_sqm=2000",
		bytes.NewReader(pngBytes(t, 32, 32)))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, post)
	require.Equal(t, http.StatusOK, rr.Code)

	get := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, get)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "none", resp.Backend)
	assert.Positive(t, resp.Runtime.Goroutines)
	require.Contains(t, resp.Operations, "analyze")
	assert.Equal(t, int64(1), resp.Operations["analyze"].Count)
}

func TestAnalyzeRequiresPost(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/analyze", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
