package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/fundsflow-backend/internal/metrics"
)

func serve(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]string
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestOpsRouter_Healthz(t *testing.T) {
	router := NewOpsRouter(prometheus.NewRegistry(), nil, nil)

	rec, body := serve(t, router, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestOpsRouter_Readyz(t *testing.T) {
	tests := []struct {
		name     string
		checkers map[string]Checker
		wantCode int
		wantBody map[string]string
	}{
		{
			name:     "No checkers",
			wantCode: http.StatusOK,
			wantBody: map[string]string{},
		},
		{
			name: "All healthy",
			checkers: map[string]Checker{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return nil },
			},
			wantCode: http.StatusOK,
			wantBody: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name: "One dependency down",
			checkers: map[string]Checker{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("connection refused") },
			},
			wantCode: http.StatusServiceUnavailable,
			wantBody: map[string]string{"postgres": "ok", "redis": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewOpsRouter(prometheus.NewRegistry(), tt.checkers, nil)

			rec, body := serve(t, router, "/readyz")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestOpsRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.CacheHit()

	rec, _ := serve(t, NewOpsRouter(reg, nil, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fundsflow_daily_limit_cache_hits_total 1")
}

func TestOpsRouter_UnknownRoute(t *testing.T) {
	rec, _ := serve(t, NewOpsRouter(prometheus.NewRegistry(), nil, nil), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
