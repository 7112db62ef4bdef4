package http

import (
	"net/http"
	"time"

	"log/slog"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zedaapi/instance-gateway/internal/http/handlers"
	ourMiddleware "github.com/zedaapi/instance-gateway/internal/http/middleware"
	"github.com/zedaapi/instance-gateway/internal/observability"
)

// RouterDeps wires together every HTTP-facing component named in
// spec.md §6: the instance-group CRUD/balancing surface and the
// external-webhook management surface, both gated behind API-key auth,
// plus the ambient health/metrics endpoints.
type RouterDeps struct {
	Logger            *slog.Logger
	Metrics           *observability.Metrics
	SentryHandler     *sentryhttp.Handler
	HealthHandler     *handlers.HealthHandler
	GroupsHandler     *handlers.GroupsHandler
	WebhooksHandler   *handlers.WebhooksHandler
	MessageHandler    *handlers.MessageHandler
	EventsHandler     *handlers.EventsHandler
	APIKey            string
	RoutingMiddleware func(http.Handler) http.Handler
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))
	if deps.Logger != nil {
		r.Use(ourMiddleware.RequestLogger(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(ourMiddleware.PrometheusMiddleware(deps.Metrics))
	}
	if deps.SentryHandler != nil {
		r.Use(deps.SentryHandler.Handle)
	}
	if deps.RoutingMiddleware != nil {
		r.Use(deps.RoutingMiddleware)
	}

	if deps.HealthHandler != nil {
		r.Get("/health", deps.HealthHandler.Health)
		r.Get("/ready", deps.HealthHandler.Ready)
	}

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(ar chi.Router) {
		ar.Use(ourMiddleware.APIKeyAuth(deps.APIKey))

		if deps.GroupsHandler != nil {
			deps.GroupsHandler.Register(ar)
		}
		if deps.MessageHandler != nil {
			deps.MessageHandler.Register(ar)
		}
		if deps.WebhooksHandler != nil {
			deps.WebhooksHandler.Register(ar)
		}
		if deps.EventsHandler != nil {
			deps.EventsHandler.Register(ar)
		}
	})

	return r
}
