// Package http provides net/http middleware that authenticates bearer tokens
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mihaimyh/gorelay/pkg/auth"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

// Config holds middleware configuration
type Config struct {
	// Verifier resolves bearer tokens (required)
	Verifier auth.Verifier

	// OnUnauthorized is called when the request carries no valid credential
	// If nil, returns 401 with a JSON error envelope
	OnUnauthorized func(w http.ResponseWriter, r *http.Request, err error)

	// Metrics records rejected credentials (optional)
	Metrics relay.Metrics
}

// Middleware creates an HTTP middleware that requires a valid bearer token and
// stores the principal in the request context. Rejected requests never reach next.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Verifier == nil {
		panic("gorelay/http: Config.Verifier is required")
	}
	metrics := relay.MetricsOrNoop(config.Metrics)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := auth.Authenticate(r, config.Verifier)
			if err != nil {
				if errors.Is(err, relay.ErrUnauthenticated) {
					metrics.RecordAuthFailure("unauthenticated")
				}
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r, err)
				} else {
					defaultUnauthorized(w, err)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(relay.WithPrincipal(r.Context(), principal)))
		})
	}
}

// HandlerFunc wraps a single handler function with Middleware
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}

// Principal returns the principal stored by Middleware.
func Principal(r *http.Request) (*relay.Principal, bool) {
	return relay.PrincipalFromContext(r.Context())
}

func defaultUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "Unauthorized",
		"details": err.Error(),
	})
}
