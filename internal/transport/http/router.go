// Package httptransport is the thin HTTP layer over the ledger, document,
// and certificate services. Handlers decode, delegate, and encode; business
// rules stay in the services.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sealedrecord/internal/platform/metrics"
	"sealedrecord/internal/platform/middleware"
)

// Registrar mounts a handler's routes on the API router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter assembles the full middleware chain and mounts every handler
// under /v1.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, requestTimeout time.Duration, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(requestTimeout))
	if m != nil {
		r.Use(middleware.Latency(m))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		for _, handler := range handlers {
			handler.Register(api)
		}
	})

	return r
}
