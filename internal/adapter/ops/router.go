package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const checkTimeout = 2 * time.Second

// Checker reports whether a dependency is reachable
type Checker func(ctx context.Context) error

// NewOpsRouter builds the operational HTTP surface:
//
//	GET /healthz  process liveness
//	GET /readyz   runs every checker
//	GET /metrics  Prometheus exposition of gatherer
func NewOpsRouter(gatherer prometheus.Gatherer, checkers map[string]Checker, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
		defer cancel()

		code := http.StatusOK
		results := make(map[string]string, len(checkers))
		for name, check := range checkers {
			if err := check(ctx); err != nil {
				log.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
				results[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, code, results)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// NewServer builds an HTTP server with sane defaults for this project
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
