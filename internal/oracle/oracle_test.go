// internal/oracle/oracle_test.go
package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, RatePerSecond: 1000, Burst: 100}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestClient_Predict(t *testing.T) {
	t.Run("decodes label and confidence", func(t *testing.T) {
		var got predictRequest
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/predict", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"predictions":[0.97],"confidence_scores":[0.93],"model_id":"m1"}`))
		})

		p, err := c.Predict(context.Background(), "m1", map[string]float64{"temp": 71.5})
		require.NoError(t, err)
		assert.Equal(t, 1, p.Label)
		assert.InDelta(t, 0.93, p.Confidence, 1e-9)

		assert.Equal(t, "m1", got.ModelID)
		assert.True(t, got.IncludeConfidence)
		require.Len(t, got.Data, 1)
		assert.Equal(t, 71.5, got.Data[0]["temp"])
	})

	t.Run("clamps confidence", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"predictions":[0],"confidence_scores":[1.4]}`))
		})
		p, err := c.Predict(context.Background(), "m1", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, p.Label)
		assert.Equal(t, 1.0, p.Confidence)
	})

	t.Run("empty predictions", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"predictions":[]}`))
		})
		_, err := c.Predict(context.Background(), "m1", nil)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model exploded", http.StatusInternalServerError)
		})
		_, err := c.Predict(context.Background(), "m1", nil)
		assert.ErrorIs(t, err, ErrStatus)
		assert.Contains(t, err.Error(), "model exploded")
	})
}

func TestClient_IsModelReady(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":["plain",{"model_id":"obj","status":"ready"},{"id":"training","status":"training"},{"id":"bare"}]}`))
	})

	tests := []struct {
		model string
		ready bool
	}{
		{"plain", true},
		{"obj", true},
		{"bare", true},
		{"training", false},
		{"unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			ready, err := c.IsModelReady(context.Background(), tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.ready, ready)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{BaseURL: "ftp://x"}).Validate())
	assert.NoError(t, (&Config{BaseURL: "http://localhost:8000"}).Validate())

	c := Config{}
	c.ApplyDefaults()
	assert.Equal(t, 10, c.Burst)
	assert.Positive(t, c.Timeout)
}
