// Package auth verifies bearer credentials against the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	gotrue "github.com/supabase-community/auth-go"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

const (
	serviceName  = "identity"
	authPath     = "/auth/v1"
	bearerPrefix = "bearer "
)

// Verifier resolves a bearer token into the authenticated principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*relay.Principal, error)
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>" header value.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", relay.ErrUnauthenticated
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", relay.ErrUnauthenticated
	}
	return token, nil
}

// Authenticate extracts the bearer token from r and verifies it.
func Authenticate(r *http.Request, v Verifier) (*relay.Principal, error) {
	token, err := ExtractBearer(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	return v.Verify(r.Context(), token)
}

// IdentityVerifier validates tokens with the identity provider's user endpoint.
type IdentityVerifier struct {
	client     gotrue.Client
	httpClient *http.Client
	now        func() time.Time
	logger     relay.Logger
	metrics    relay.Metrics
}

// NewIdentityVerifier creates a verifier for a Supabase-compatible auth API.
func NewIdentityVerifier(config Config) (*IdentityVerifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	client := gotrue.New("", strings.TrimSpace(config.ServiceKey)).
		WithCustomAuthURL(baseURL + authPath)

	return &IdentityVerifier{
		client:     client,
		httpClient: httpClient,
		now:        now,
		logger:     relay.LoggerOrNoop(config.Logger),
		metrics:    relay.MetricsOrNoop(config.Metrics),
	}, nil
}

// Verify implements Verifier. Every rejection wraps relay.ErrInvalidToken.
func (v *IdentityVerifier) Verify(ctx context.Context, token string) (*relay.Principal, error) {
	if err := v.precheck(token); err != nil {
		v.metrics.RecordAuthFailure("invalid_token")
		return nil, err
	}

	startTime := time.Now()
	resp, err := v.client.
		WithClient(v.requestClient(ctx)).
		WithToken(token).
		GetUser()
	v.metrics.RecordUpstreamCallDuration(serviceName, "get_user", time.Since(startTime))
	if err != nil {
		v.metrics.RecordUpstreamCall(serviceName, "get_user", "error")
		v.metrics.RecordAuthFailure("invalid_token")
		var transportErr *url.Error
		switch {
		case ctx.Err() != nil:
		case errors.As(err, &transportErr):
			v.logger.Error("identity provider unreachable", relay.Field{Key: "error", Value: err})
		default:
			v.logger.Warn("identity provider rejected token", relay.Field{Key: "error", Value: err})
		}
		return nil, fmt.Errorf("%w: %v", relay.ErrInvalidToken, err)
	}
	v.metrics.RecordUpstreamCall(serviceName, "get_user", "ok")

	if resp == nil || resp.ID == uuid.Nil {
		v.metrics.RecordAuthFailure("invalid_token")
		return nil, fmt.Errorf("%w: identity provider returned no user", relay.ErrInvalidToken)
	}

	return &relay.Principal{ID: resp.ID.String(), Email: resp.Email}, nil
}

// requestClient binds ctx to every request the auth client sends; GetUser
// itself takes no context.
func (v *IdentityVerifier) requestClient(ctx context.Context) http.Client {
	base := v.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client := *v.httpClient
	client.Transport = contextTransport{ctx: ctx, base: base}
	return client
}

type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// precheck rejects tokens that are not JWTs or are already expired without a
// round trip. Signature validation is left to the identity provider.
func (v *IdentityVerifier) precheck(token string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: malformed token", relay.ErrInvalidToken)
	}
	if !claims.VerifyExpiresAt(v.now().Unix(), false) {
		return fmt.Errorf("%w: %v", relay.ErrInvalidToken, jwt.ErrTokenExpired)
	}
	return nil
}

// IsAuthError reports whether err should stop the request with 401.
func IsAuthError(err error) bool {
	return errors.Is(err, relay.ErrUnauthenticated) || errors.Is(err, relay.ErrInvalidToken)
}
