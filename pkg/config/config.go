// Package config loads the relay configuration from the environment.
// It is read once at startup and treated as immutable.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

// Profile store backends selectable with PROFILE_STORE.
const (
	StorePostgREST = "postgrest"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
	StoreRedis     = "redis"
	StoreMemory    = "memory"
)

// Config holds every setting the relay needs
type Config struct {
	// Payments
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY" validate:"required"`
	StripePriceID       string `env:"STRIPE_PRICE_ID" validate:"required"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	StripeAPIURL        string `env:"STRIPE_API_URL" validate:"omitempty,url"`

	// Identity provider
	SupabaseURL            string `env:"SUPABASE_URL" validate:"required,url"`
	SupabaseServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY" validate:"required"`

	// Application
	AppURL string `env:"APP_URL" validate:"required,url"`

	// Generation
	GeminiAPIKey string `env:"GEMINI_API_KEY" validate:"required"`
	GeminiAPIURL string `env:"GEMINI_API_URL" validate:"omitempty,url"`

	// Analytics
	AnalyticsAPIKey string `env:"ANALYTICS_API_KEY" validate:"required"`
	AnalyticsAPIURL string `env:"ANALYTICS_API_URL" validate:"omitempty,url"`

	// Profile store
	ProfileStore       string `env:"PROFILE_STORE" validate:"oneof=postgrest postgres firestore redis memory"`
	ProfilesTable      string `env:"PROFILES_TABLE" validate:"required"`
	DatabaseURL        string `env:"DATABASE_URL" validate:"required_if=ProfileStore postgres"`
	FirestoreProjectID string `env:"FIRESTORE_PROJECT_ID" validate:"required_if=ProfileStore firestore"`
	RedisURL           string `env:"REDIS_URL" validate:"required_if=ProfileStore redis"`

	// Server
	Port            int           `env:"PORT" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=json console"`
}

// Error lists every configuration problem found by Load.
// It wraps relay.ErrConfig.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "required environment variables are not set: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid environment variables: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

func (e *Error) Unwrap() error { return relay.ErrConfig }

// Load reads .env from the working directory when present, then the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an
// error; variables already set in the environment take precedence over it.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: read %s: %v", relay.ErrConfig, path, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	var invalid []string
	get := func(key, defaultVal string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return defaultVal
	}

	cfg := &Config{
		StripeSecretKey:        get("STRIPE_SECRET_KEY", ""),
		StripePriceID:          get("STRIPE_PRICE_ID", ""),
		StripeWebhookSecret:    get("STRIPE_WEBHOOK_SECRET", ""),
		StripeAPIURL:           get("STRIPE_API_URL", ""),
		SupabaseURL:            get("SUPABASE_URL", ""),
		SupabaseServiceRoleKey: get("SUPABASE_SERVICE_ROLE_KEY", ""),
		AppURL:                 get("APP_URL", ""),
		GeminiAPIKey:           get("GEMINI_API_KEY", ""),
		GeminiAPIURL:           get("GEMINI_API_URL", ""),
		AnalyticsAPIKey:        get("ANALYTICS_API_KEY", ""),
		AnalyticsAPIURL:        get("ANALYTICS_API_URL", ""),
		ProfileStore:           strings.ToLower(get("PROFILE_STORE", StorePostgREST)),
		ProfilesTable:          get("PROFILES_TABLE", "profiles"),
		DatabaseURL:            get("DATABASE_URL", ""),
		FirestoreProjectID:     get("FIRESTORE_PROJECT_ID", ""),
		RedisURL:               get("REDIS_URL", ""),
		LogLevel:               strings.ToLower(get("LOG_LEVEL", "info")),
		LogFormat:              strings.ToLower(get("LOG_FORMAT", "json")),
	}

	port, err := strconv.Atoi(get("PORT", "3001"))
	if err != nil {
		invalid = append(invalid, "PORT")
	}
	cfg.Port = port

	shutdown, err := time.ParseDuration(get("SHUTDOWN_TIMEOUT", "15s"))
	if err != nil || shutdown < 0 {
		invalid = append(invalid, "SHUTDOWN_TIMEOUT")
	}
	cfg.ShutdownTimeout = shutdown

	metricsEnabled, err := strconv.ParseBool(get("METRICS_ENABLED", "true"))
	if err != nil {
		invalid = append(invalid, "METRICS_ENABLED")
	}
	cfg.MetricsEnabled = metricsEnabled

	return cfg, cfg.validate(invalid)
}

func (c *Config) validate(invalid []string) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})

	var missing []string
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", relay.ErrConfig, err)
		}
		for _, fe := range verrs {
			switch fe.Tag() {
			case "required", "required_if":
				missing = append(missing, fe.Field())
			default:
				if !contains(invalid, fe.Field()) {
					invalid = append(invalid, fe.Field())
				}
			}
		}
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(invalid)
	return &Error{Missing: missing, Invalid: invalid}
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Redacted returns the configuration keyed by environment variable with
// secrets masked.
func (c *Config) Redacted() map[string]string {
	return map[string]string{
		"STRIPE_SECRET_KEY":         mask(c.StripeSecretKey),
		"STRIPE_PRICE_ID":           c.StripePriceID,
		"STRIPE_WEBHOOK_SECRET":     mask(c.StripeWebhookSecret),
		"STRIPE_API_URL":            c.StripeAPIURL,
		"SUPABASE_URL":              c.SupabaseURL,
		"SUPABASE_SERVICE_ROLE_KEY": mask(c.SupabaseServiceRoleKey),
		"APP_URL":                   c.AppURL,
		"GEMINI_API_KEY":            mask(c.GeminiAPIKey),
		"GEMINI_API_URL":            c.GeminiAPIURL,
		"ANALYTICS_API_KEY":         mask(c.AnalyticsAPIKey),
		"ANALYTICS_API_URL":         c.AnalyticsAPIURL,
		"PROFILE_STORE":             c.ProfileStore,
		"PROFILES_TABLE":            c.ProfilesTable,
		"DATABASE_URL":              mask(c.DatabaseURL),
		"FIRESTORE_PROJECT_ID":      c.FirestoreProjectID,
		"REDIS_URL":                 mask(c.RedisURL),
		"PORT":                      strconv.Itoa(c.Port),
		"SHUTDOWN_TIMEOUT":          c.ShutdownTimeout.String(),
		"METRICS_ENABLED":           strconv.FormatBool(c.MetricsEnabled),
		"LOG_LEVEL":                 c.LogLevel,
		"LOG_FORMAT":                c.LogFormat,
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
