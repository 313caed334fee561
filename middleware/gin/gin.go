// Package gin provides Gin middleware that authenticates bearer tokens
package gin

import (
	"errors"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/gorelay/pkg/auth"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

// PrincipalKey is the gin context key holding the *relay.Principal
const PrincipalKey = "gorelay.principal"

// Config holds middleware configuration
type Config struct {
	// Verifier resolves bearer tokens (required)
	Verifier auth.Verifier

	// OnUnauthorized is called when the request carries no valid credential
	// If nil, aborts with 401 and a JSON error envelope
	OnUnauthorized func(c *gongin.Context, err error)

	// Metrics records rejected credentials (optional)
	Metrics relay.Metrics
}

// Middleware creates a Gin middleware that requires a valid bearer token.
// The principal is stored under PrincipalKey and in the request context, so
// wrapped net/http handlers see it too.
func Middleware(cfg Config) gongin.HandlerFunc {
	if cfg.Verifier == nil {
		panic("gorelay/gin: Config.Verifier is required")
	}
	metrics := relay.MetricsOrNoop(cfg.Metrics)

	return func(c *gongin.Context) {
		principal, err := auth.Authenticate(c.Request, cfg.Verifier)
		if err != nil {
			if errors.Is(err, relay.ErrUnauthenticated) {
				metrics.RecordAuthFailure("unauthenticated")
			}
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c, err)
				c.Abort()
			} else {
				defaultUnauthorized(c, err)
			}
			return
		}

		c.Set(PrincipalKey, principal)
		c.Request = c.Request.WithContext(relay.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// Principal returns the principal stored by Middleware.
func Principal(c *gongin.Context) (*relay.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*relay.Principal)
	return p, ok && p != nil
}

func defaultUnauthorized(c *gongin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gongin.H{
		"error":   "Unauthorized",
		"details": err.Error(),
	})
}
