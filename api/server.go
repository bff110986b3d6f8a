package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	processorwebhook "github.com/atelierworks/atelier-backend/internal/webhooks/processor"
	"github.com/atelierworks/atelier-backend/pkg/config"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

// Pinger is the health-check surface of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerParams configure the operational HTTP surface. Business routing
// lives in the external edge service; the engine only exposes health and
// metrics.
type HandlerParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       Pinger
	Redis    Pinger
	Webhooks processorwebhook.Service
	Gatherer prometheus.Gatherer
}

// NewHandler returns the HTTP handler that cmd/api wires into its server.
func NewHandler(params HandlerParams) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", healthzHandler(params))
	r.Get("/readyz", readyzHandler(params))
	if params.Webhooks != nil {
		r.Post("/hooks/processor", webhookHandler(params))
	}

	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

func healthzHandler(params HandlerParams) http.HandlerFunc {
	env := ""
	if params.Config != nil {
		env = params.Config.App.Env
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(params.Logger, w, r, http.StatusOK, map[string]string{
			"status": "ok",
			"env":    env,
		})
	}
}

func readyzHandler(params HandlerParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status := http.StatusOK

		if params.DB != nil {
			checks["database"] = pingResult(r.Context(), params.DB)
		}
		if params.Redis != nil {
			checks["redis"] = pingResult(r.Context(), params.Redis)
		}
		for _, result := range checks {
			if result != "ok" {
				status = http.StatusServiceUnavailable
			}
		}
		writeStatus(params.Logger, w, r, status, checks)
	}
}

// webhookHandler ingests verified processor events. Signature verification
// happens at the edge before delivery reaches this endpoint.
func webhookHandler(params HandlerParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var envelope processorwebhook.Envelope
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			writeStatus(params.Logger, w, r, http.StatusBadRequest, map[string]string{
				"error": "malformed event body",
			})
			return
		}

		result, err := params.Webhooks.HandleEvent(r.Context(), envelope)
		if err != nil {
			meta := pkgerrors.MetadataFor(pkgerrors.CodeInternal)
			if typed := pkgerrors.As(err); typed != nil {
				meta = pkgerrors.MetadataFor(typed.Code())
			}
			writeStatus(params.Logger, w, r, meta.HTTPStatus, map[string]string{
				"error": meta.PublicMessage,
			})
			return
		}

		writeStatus(params.Logger, w, r, http.StatusOK, map[string]any{
			"status":    "ok",
			"duplicate": result.Duplicate,
		})
	}
}

func pingResult(ctx context.Context, p Pinger) string {
	if err := p.Ping(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

func writeStatus(logg *logger.Logger, w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && logg != nil {
		logg.Error(r.Context(), "failed to write status response", err)
	}
}
