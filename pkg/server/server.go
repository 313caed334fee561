// Package server assembles the relay's HTTP surface.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	authmw "github.com/mihaimyh/gorelay/middleware/http"
	"github.com/mihaimyh/gorelay/pkg/analytics"
	"github.com/mihaimyh/gorelay/pkg/auth"
	"github.com/mihaimyh/gorelay/pkg/billing"
	"github.com/mihaimyh/gorelay/pkg/generation"
	"github.com/mihaimyh/gorelay/pkg/internal/httputil"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

// Route paths.
const (
	PathCheckout   = "/api/billing/create-checkout-session"
	PathPortal     = "/api/billing/create-portal-session"
	PathWebhook    = "/api/billing/webhook"
	PathGeneration = "/api/generation/proxy"
	PathAnalytics  = "/api/analytics/proxy"
	PathHealth     = "/healthz"
	PathMetrics    = "/metrics"
)

// Deps are the components mounted by NewRouter.
type Deps struct {
	Verifier   auth.Verifier
	Billing    *billing.Handler
	Generation *generation.Handler
	Analytics  *analytics.Handler

	// Logger receives access logs. The zero value discards them.
	Logger zerolog.Logger

	// Metrics records rejected credentials (optional).
	Metrics relay.Metrics

	// Gatherer exposes PathMetrics when set.
	Gatherer prometheus.Gatherer

	// CORS defaults to DefaultCORSConfig.
	CORS *CORSConfig
}

// NewRouter returns the relay's routes. Every /api route except the webhook
// requires a bearer token; the webhook authenticates by signature instead.
func NewRouter(deps Deps) http.Handler {
	cors := DefaultCORSConfig()
	if deps.CORS != nil {
		cors = *deps.CORS
	}

	r := chi.NewRouter()
	r.Use(CORS(cors))
	r.Use(hlog.NewHandler(deps.Logger))
	r.Use(requestID)
	r.Use(accessLog())
	r.Use(middleware.Recoverer)

	r.Get(PathHealth, func(w http.ResponseWriter, r *http.Request) {
		_ = httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.Handle(PathMetrics, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post(PathWebhook, deps.Billing.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(authmw.Middleware(authmw.Config{
			Verifier: deps.Verifier,
			Metrics:  deps.Metrics,
		}))

		r.Post(PathCheckout, deps.Billing.CheckoutSession)
		r.Post(PathPortal, deps.Billing.PortalSession)
		r.Post(PathGeneration, deps.Generation.Proxy)
		r.Post(PathAnalytics, deps.Analytics.Proxy)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "Not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	})

	return r
}

// New returns an http.Server for handler with the relay's timeouts.
// WriteTimeout must exceed the 30s upstream client timeout.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
