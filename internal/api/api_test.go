// internal/api/api_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/FairForge/intellinspect/internal/oracle"
	"github.com/FairForge/intellinspect/internal/replay"
	"github.com/FairForge/intellinspect/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// thresholdOracle flags hot readings as confident defects
type thresholdOracle struct {
	ready bool
}

func (o thresholdOracle) IsModelReady(ctx context.Context, modelID string) (bool, error) {
	return o.ready, nil
}

func (o thresholdOracle) Predict(ctx context.Context, modelID string, features map[string]float64) (oracle.Prediction, error) {
	if features["temp"] >= 100 {
		return oracle.Prediction{Label: 1, Confidence: 0.95}, nil
	}
	return oracle.Prediction{Label: 0, Confidence: 0.6}, nil
}

type instantPacer struct{}

func (instantPacer) Wait(ctx context.Context, d time.Duration) error { return ctx.Err() }

// hourlyCSV has 48 hourly rows starting 2024-01-01; every 8th row is hot and defective
func hourlyCSV() string {
	var b strings.Builder
	b.WriteString("timestamp,temp,pressure,Response\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48; i++ {
		temp, label := 70, 0
		if (i+1)%8 == 0 {
			temp, label = 120, 1
		}
		fmt.Fprintf(&b, "%s,%d,%d,%d\n", start.Add(time.Duration(i)*time.Hour).Format(time.RFC3339), temp, 30+i%3, label)
	}
	return b.String()
}

type testEnv struct {
	handler http.Handler
	engine  *replay.Engine
	csvPath string
}

func newTestEnv(t *testing.T, ready bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "line-a.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(hourlyCSV()), 0600))

	st := store.NewMemoryStore()
	logger := zap.NewNop()

	router := &dataset.Router{Local: dataset.FileSource{Root: dir}}
	catalog, err := dataset.NewCatalog(dataset.CatalogConfig{DataDir: filepath.Join(dir, "data")}, router, st, logger)
	require.NoError(t, err)

	engine := replay.NewEngine(replay.DefaultConfig(), replay.Deps{
		Store:  st,
		Rows:   catalog,
		Oracle: thresholdOracle{ready: ready},
		Pacer:  instantPacer{},
	}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
	})

	srv := NewServer(":0", Deps{Catalog: catalog, Partitions: st, Engine: engine, Store: st}, logger)
	return &testEnv{handler: srv.Handler(), engine: engine, csvPath: csvPath}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) ingest(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/datasets", map[string]string{
		"id":  "line-a",
		"uri": e.csvPath,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "intellinspect_http_requests_total")
}

type downStore struct{}

func (downStore) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestReady(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		env := newTestEnv(t, true)

		w := env.do(t, http.MethodGet, "/ready", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		decodeBody(t, w, &resp)
		assert.Equal(t, true, resp["ready"])
		assert.Equal(t, float64(0), resp["active_workers"])
	})

	t.Run("store down", func(t *testing.T) {
		env := newTestEnv(t, true)
		srv := NewServer(":0", Deps{Engine: env.engine, Store: downStore{}}, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")
	})
}

func TestDatasets(t *testing.T) {
	env := newTestEnv(t, true)

	t.Run("ingest returns the profile", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/datasets", map[string]string{
			"id":   "line-a",
			"name": "Line A",
			"uri":  env.csvPath,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var p dataset.Profile
		decodeBody(t, w, &p)
		assert.Equal(t, "line-a", p.ID)
		assert.Equal(t, "Line A", p.Name)
		assert.Equal(t, 48, p.RowCount)
		assert.False(t, p.SyntheticTimestamp)
		assert.InDelta(t, 42.0/48*100, p.PassRate, 1e-9)
	})

	t.Run("list and get", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/datasets", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Count int `json:"count"`
		}
		decodeBody(t, w, &list)
		assert.Equal(t, 1, list.Count)

		w = env.do(t, http.MethodGet, "/api/v1/datasets/line-a", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, http.MethodGet, "/api/v1/datasets/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("schema violations", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/datasets", map[string]string{"uri": env.csvPath})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body struct {
			Errors []string `json:"errors"`
		}
		decodeBody(t, w, &body)
		assert.NotEmpty(t, body.Errors)

		w = env.do(t, http.MethodPost, "/api/v1/datasets", map[string]string{"id": "../etc", "uri": env.csvPath})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do(t, http.MethodPost, "/api/v1/datasets", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing file is a client error", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/datasets", map[string]string{
			"id":  "ghost",
			"uri": filepath.Join(filepath.Dir(env.csvPath), "nope.csv"),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("paths outside the dataset root are refused", func(t *testing.T) {
		outside := filepath.Join(t.TempDir(), "secrets.csv")
		require.NoError(t, os.WriteFile(outside, []byte("user,password\nroot,hunter2\n"), 0600))

		for _, uri := range []string{
			outside,
			"file://" + outside,
			filepath.Dir(env.csvPath) + "/../secrets.csv",
		} {
			w := env.do(t, http.MethodPost, "/api/v1/datasets", map[string]string{"id": "leak", "uri": uri})
			assert.Equal(t, http.StatusBadRequest, w.Code, uri)
			assert.Contains(t, w.Body.String(), "outside the dataset root", uri)
			assert.NotContains(t, w.Body.String(), "password", uri)
		}

		w := env.do(t, http.MethodGet, "/api/v1/datasets/leak", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPartition(t *testing.T) {
	env := newTestEnv(t, true)
	env.ingest(t)

	t.Run("valid partition is saved", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/datasets/line-a/partition", map[string]interface{}{
			"training":   map[string]string{"start": "2024-01-01T00:00:00Z", "end": "2024-01-01T15:00:00Z"},
			"testing":    map[string]string{"start": "2024-01-01T16:00:00Z", "end": "2024-01-01T23:00:00Z"},
			"simulation": map[string]string{"start": "2024-01-02T00:00:00Z", "end": "2024-01-02T23:00:00Z"},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result struct {
			Valid   bool `json:"valid"`
			Summary struct {
				Simulation struct {
					Days int `json:"days"`
				} `json:"simulation"`
			} `json:"summary"`
		}
		decodeBody(t, w, &result)
		assert.True(t, result.Valid)
		assert.Equal(t, 1, result.Summary.Simulation.Days)

		w = env.do(t, http.MethodGet, "/api/v1/datasets/line-a/partition", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "2024-01-02T00:00:00Z")
	})

	t.Run("overlapping windows report every error", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/datasets/line-a/partition", map[string]interface{}{
			"training":   map[string]string{"start": "2023-12-31T00:00:00Z", "end": "2024-01-01T20:00:00Z"},
			"testing":    map[string]string{"start": "2024-01-01T16:00:00Z", "end": "2024-01-02T05:00:00Z"},
			"simulation": map[string]string{"start": "2024-01-02T00:00:00Z", "end": "2024-01-05T00:00:00Z"},
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var result struct {
			Valid  bool     `json:"valid"`
			Errors []string `json:"errors"`
		}
		decodeBody(t, w, &result)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "training period must end before testing period starts")
		assert.Contains(t, result.Errors, "testing period must end before simulation period starts")
		assert.Contains(t, result.Errors, "training period cannot start before dataset start date")
		assert.Contains(t, result.Errors, "simulation period cannot end after dataset end date")
	})

	t.Run("bad timestamps and unknown dataset", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/datasets/line-a/partition", map[string]interface{}{
			"training":   map[string]string{"start": "yesterday", "end": "2024-01-01T15:00:00Z"},
			"testing":    map[string]string{"start": "2024-01-01T16:00:00Z", "end": "2024-01-01T23:00:00Z"},
			"simulation": map[string]string{"start": "2024-01-02T00:00:00Z", "end": "2024-01-02T23:00:00Z"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "training start")

		w = env.do(t, http.MethodPost, "/api/v1/datasets/other/partition", map[string]interface{}{
			"training":   map[string]string{"start": "2024-01-01T00:00:00Z", "end": "2024-01-01T15:00:00Z"},
			"testing":    map[string]string{"start": "2024-01-01T16:00:00Z", "end": "2024-01-01T23:00:00Z"},
			"simulation": map[string]string{"start": "2024-01-02T00:00:00Z", "end": "2024-01-02T23:00:00Z"},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = env.do(t, http.MethodGet, "/api/v1/datasets/other/partition", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSimulationLifecycle(t *testing.T) {
	env := newTestEnv(t, true)
	env.ingest(t)

	w := env.do(t, http.MethodPost, "/api/v1/simulations", map[string]interface{}{
		"model_id":         "model-1",
		"dataset_id":       "line-a",
		"start":            "2024-01-02T00:00:00Z",
		"end":              "2024-01-02T23:00:00Z",
		"speed_multiplier": 100,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var started struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, w, &started)
	require.NotEmpty(t, started.SessionID)

	var snap domain.Snapshot
	require.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/api/v1/simulations/"+started.SessionID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		snap = domain.Snapshot{}
		if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
			return false
		}
		return snap.Status == domain.StatusCompleted && env.engine.Active() == 0
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 24, snap.RowsProcessed)
	assert.Equal(t, 24, snap.PredictionsCount)
	assert.Equal(t, 3, snap.AlertsCount)
	assert.InDelta(t, 100.0, snap.Percent, 1e-9)
	assert.InDelta(t, 100.0, snap.QualityScore, 1e-9)
	assert.InDelta(t, 1.0, snap.F1, 1e-9)

	w = env.do(t, http.MethodGet, "/api/v1/simulations/"+started.SessionID+"/predictions?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var preds struct {
		Count       int                        `json:"count"`
		Predictions []*domain.PredictionRecord `json:"predictions"`
	}
	decodeBody(t, w, &preds)
	assert.Equal(t, 5, preds.Count)
	assert.Equal(t, 23, preds.Predictions[0].Seq)

	w = env.do(t, http.MethodGet, "/api/v1/simulations/"+started.SessionID+"/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var alerts struct {
		Alerts []*domain.QualityAlert `json:"alerts"`
	}
	decodeBody(t, w, &alerts)
	require.Len(t, alerts.Alerts, 3)
	for _, a := range alerts.Alerts {
		assert.Equal(t, domain.SeverityHigh, a.Severity)
		assert.Equal(t, "Quality issue detected with 95.0% confidence", a.Message)
	}

	w = env.do(t, http.MethodGet, "/api/v1/simulations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), started.SessionID)

	t.Run("control on a completed session", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/simulations/"+started.SessionID+"/stop", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, http.MethodPost, "/api/v1/simulations/"+started.SessionID+"/pause", nil)
		assert.Equal(t, http.StatusConflict, w.Code)

		w = env.do(t, http.MethodPost, "/api/v1/simulations/"+started.SessionID+"/resume", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		for _, path := range []string{"/pause", "/resume", "/stop"} {
			w := env.do(t, http.MethodPost, "/api/v1/simulations/nope"+path, nil)
			assert.Equal(t, http.StatusNotFound, w.Code, path)
		}
		w := env.do(t, http.MethodGet, "/api/v1/simulations/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestStartSimulation_Rejections(t *testing.T) {
	body := func(mutate func(m map[string]interface{})) map[string]interface{} {
		m := map[string]interface{}{
			"model_id":   "model-1",
			"dataset_id": "line-a",
			"start":      "2024-01-02T00:00:00Z",
			"end":        "2024-01-02T23:00:00Z",
		}
		mutate(m)
		return m
	}

	tests := []struct {
		name   string
		ready  bool
		body   map[string]interface{}
		status int
	}{
		{"missing model", true, body(func(m map[string]interface{}) { delete(m, "model_id") }), http.StatusBadRequest},
		{"zero speed", true, body(func(m map[string]interface{}) { m["speed_multiplier"] = 0 }), http.StatusBadRequest},
		{"negative speed", true, body(func(m map[string]interface{}) { m["speed_multiplier"] = -2 }), http.StatusBadRequest},
		{"bad timestamp", true, body(func(m map[string]interface{}) { m["start"] = "soon" }), http.StatusBadRequest},
		{"inverted window", true, body(func(m map[string]interface{}) { m["start"], m["end"] = m["end"], m["start"] }), http.StatusBadRequest},
		{"unknown dataset", true, body(func(m map[string]interface{}) { m["dataset_id"] = "other" }), http.StatusNotFound},
		{"model not ready", false, body(func(m map[string]interface{}) {}), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.ready)
			env.ingest(t)

			w := env.do(t, http.MethodPost, "/api/v1/simulations", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, 0, env.engine.Active())
		})
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
		err   bool
	}{
		{"", defaultListLimit, false},
		{"limit=7", 7, false},
		{"limit=999999", maxListLimit, false},
		{"limit=0", 0, true},
		{"limit=abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			got, err := parseLimit(req)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("wrapped: %w", domain.ErrNotFound)))
	assert.Equal(t, http.StatusBadRequest, statusFor(&ValidationError{Problems: []string{"x"}}))
	assert.Equal(t, http.StatusBadRequest, statusFor(replay.ErrModelNotReady))
	assert.Equal(t, http.StatusConflict, statusFor(replay.ErrAlreadyRunning))
	assert.Equal(t, http.StatusConflict, statusFor(fmt.Errorf("%w: x", replay.ErrInvalidTransition)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
