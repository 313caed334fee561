// Package echo provides Echo middleware that authenticates bearer tokens
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/gorelay/pkg/auth"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

// PrincipalKey is the echo context key holding the *relay.Principal
const PrincipalKey = "gorelay.principal"

// Config holds middleware configuration
type Config struct {
	// Verifier resolves bearer tokens (required)
	Verifier auth.Verifier

	// OnUnauthorized is called when the request carries no valid credential
	// If nil, returns 401 with a JSON error envelope
	OnUnauthorized func(c echo.Context, err error) error

	// Metrics records rejected credentials (optional)
	Metrics relay.Metrics
}

// Middleware creates an Echo middleware that requires a valid bearer token
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Verifier == nil {
		panic("gorelay/echo: Config.Verifier is required")
	}
	metrics := relay.MetricsOrNoop(cfg.Metrics)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, err := auth.Authenticate(c.Request(), cfg.Verifier)
			if err != nil {
				if errors.Is(err, relay.ErrUnauthenticated) {
					metrics.RecordAuthFailure("unauthenticated")
				}
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c, err)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "Unauthorized",
					"details": err.Error(),
				})
			}

			c.Set(PrincipalKey, principal)
			c.SetRequest(c.Request().WithContext(relay.WithPrincipal(c.Request().Context(), principal)))
			return next(c)
		}
	}
}

// Principal returns the principal stored by Middleware.
func Principal(c echo.Context) (*relay.Principal, bool) {
	p, ok := c.Get(PrincipalKey).(*relay.Principal)
	return p, ok && p != nil
}
