package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

const defaultHTTPTimeout = 30 * time.Second

// Config holds configuration for the identity-provider token verifier
type Config struct {
	// BaseURL is the identity provider's project URL (required),
	// e.g. https://abcd.supabase.co
	BaseURL string

	// ServiceKey is the server-held key sent as the apikey header (required)
	ServiceKey string

	// HTTPClient is an optional HTTP client for verification calls.
	// If nil, a default client with a 30s timeout is used.
	HTTPClient *http.Client

	// Now overrides the clock used for the local expiry pre-check (tests).
	Now func() time.Time

	Logger  relay.Logger
	Metrics relay.Metrics
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("%w: identity provider URL is required", relay.ErrConfig)
	}
	if strings.TrimSpace(c.ServiceKey) == "" {
		return fmt.Errorf("%w: identity provider service key is required", relay.ErrConfig)
	}
	return nil
}
