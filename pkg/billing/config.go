package billing

import (
	"fmt"
	"strings"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

const (
	// DefaultTrialPeriodDays is the trial attached to every checkout session.
	DefaultTrialPeriodDays = 2

	successPath = "/dashboard?session_id={CHECKOUT_SESSION_ID}"
	cancelPath  = "/pricing"
	returnPath  = "/dashboard"
)

// Config holds the billing relay configuration
type Config struct {
	// Gateway is the payments provider client (required)
	Gateway Gateway

	// Verifier authenticates inbound webhooks (required)
	Verifier EventVerifier

	// Store reads and writes profiles in the identity provider's data store (required)
	Store relay.ProfileStore

	// PriceID is the single subscription price offered at checkout (required)
	PriceID string

	// AppURL is the public application URL used to build redirect URLs (required)
	AppURL string

	// TrialPeriodDays defaults to DefaultTrialPeriodDays.
	TrialPeriodDays int64

	Logger  relay.Logger
	Metrics relay.Metrics
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	var missing []string
	if c.Gateway == nil {
		missing = append(missing, "gateway")
	}
	if c.Verifier == nil {
		missing = append(missing, "verifier")
	}
	if c.Store == nil {
		missing = append(missing, "store")
	}
	if strings.TrimSpace(c.PriceID) == "" {
		missing = append(missing, "price id")
	}
	if strings.TrimSpace(c.AppURL) == "" {
		missing = append(missing, "app url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: billing requires %s", relay.ErrConfig, strings.Join(missing, ", "))
	}
	if c.TrialPeriodDays < 0 {
		return fmt.Errorf("%w: trial period must not be negative", relay.ErrConfig)
	}
	return nil
}

func (c *Config) successURL() string {
	return strings.TrimRight(c.AppURL, "/") + successPath
}

func (c *Config) cancelURL() string {
	return strings.TrimRight(c.AppURL, "/") + cancelPath
}

func (c *Config) returnURL() string {
	return strings.TrimRight(c.AppURL, "/") + returnPath
}
