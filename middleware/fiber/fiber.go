// Package fiber provides Fiber middleware that authenticates bearer tokens
package fiber

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/gorelay/pkg/auth"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

// PrincipalKey is the fiber locals key holding the *relay.Principal
const PrincipalKey = "gorelay.principal"

// Config holds middleware configuration
type Config struct {
	// Verifier resolves bearer tokens (required)
	Verifier auth.Verifier

	// OnUnauthorized is called when the request carries no valid credential
	// If nil, returns 401 with a JSON error envelope
	OnUnauthorized func(c *fiber.Ctx, err error) error

	// Metrics records rejected credentials (optional)
	Metrics relay.Metrics
}

// Middleware creates a Fiber middleware that requires a valid bearer token.
// The principal is stored in Locals and in the user context.
func Middleware(cfg Config) fiber.Handler {
	if cfg.Verifier == nil {
		panic("gorelay/fiber: Config.Verifier is required")
	}
	metrics := relay.MetricsOrNoop(cfg.Metrics)

	return func(c *fiber.Ctx) error {
		principal, err := authenticate(c, cfg.Verifier)
		if err != nil {
			if errors.Is(err, relay.ErrUnauthenticated) {
				metrics.RecordAuthFailure("unauthenticated")
			}
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c, err)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Unauthorized",
				"details": err.Error(),
			})
		}

		c.Locals(PrincipalKey, principal)
		c.SetUserContext(relay.WithPrincipal(c.UserContext(), principal))
		return c.Next()
	}
}

func authenticate(c *fiber.Ctx, verifier auth.Verifier) (*relay.Principal, error) {
	token, err := auth.ExtractBearer(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return nil, err
	}
	return verifier.Verify(c.UserContext(), token)
}

// Principal returns the principal stored by Middleware.
func Principal(c *fiber.Ctx) (*relay.Principal, bool) {
	p, ok := c.Locals(PrincipalKey).(*relay.Principal)
	return p, ok && p != nil
}
