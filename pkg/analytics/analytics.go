// Package analytics is a transparent JSON proxy to the remote analytics API.
// The server-held key is injected on the way out; the upstream status and body
// are returned unchanged.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

const (
	// DefaultURL is the analytics endpoint used when none is configured.
	DefaultURL = "https://api.analytics.example.com/v1/query"

	// APIKeyHeader carries the server-held key.
	APIKeyHeader = "x-api-key"

	serviceName        = "analytics"
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 8 << 20
)

// Config holds the analytics proxy options
type Config struct {
	// APIKey may be empty; requests then fail with relay.ErrConfig.
	APIKey     string
	URL        string
	HTTPClient *http.Client
	Logger     relay.Logger
	Metrics    relay.Metrics
}

// Response is the upstream reply passed back to the caller.
type Response struct {
	StatusCode int
	Body       []byte
}

// Proxy forwards JSON bodies to the analytics API.
type Proxy struct {
	apiKey  string
	url     string
	client  *http.Client
	logger  relay.Logger
	metrics relay.Metrics
}

// NewProxy creates an analytics proxy.
func NewProxy(config Config) *Proxy {
	url := strings.TrimSpace(config.URL)
	if url == "" {
		url = DefaultURL
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Proxy{
		apiKey:  strings.TrimSpace(config.APIKey),
		url:     url,
		client:  client,
		logger:  relay.LoggerOrNoop(config.Logger),
		metrics: relay.MetricsOrNoop(config.Metrics),
	}
}

// Configured reports whether an API key is set.
func (p *Proxy) Configured() bool {
	return p.apiKey != ""
}

// Forward posts body to the analytics API. Non-2xx upstream statuses are not
// errors; they are returned in the Response. A non-empty body that is not JSON
// wraps relay.ErrUpstream.
func (p *Proxy) Forward(ctx context.Context, body json.RawMessage) (*Response, error) {
	if !p.Configured() {
		return nil, fmt.Errorf("%w: analytics api key is not set", relay.ErrConfig)
	}

	startTime := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", relay.ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, p.apiKey)

	resp, err := p.client.Do(req)
	p.metrics.RecordUpstreamCallDuration(serviceName, "query", time.Since(startTime))
	if err != nil {
		p.metrics.RecordUpstreamCall(serviceName, "query", "error")
		p.logger.Error("analytics request failed", relay.Field{Key: "error", Value: err})
		return nil, fmt.Errorf("%w: HTTP request failed: %v", relay.ErrUpstream, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		p.metrics.RecordUpstreamCall(serviceName, "query", "error")
		return nil, fmt.Errorf("%w: read response body: %v", relay.ErrUpstream, err)
	}
	p.metrics.RecordUpstreamCall(serviceName, "query", fmt.Sprintf("%d", resp.StatusCode))

	if len(bytes.TrimSpace(respBody)) > 0 && !json.Valid(respBody) {
		p.logger.Warn("analytics returned a non-JSON body",
			relay.Field{Key: "status", Value: resp.StatusCode})
		return nil, fmt.Errorf("%w: upstream returned non-JSON body (status %d)", relay.ErrUpstream, resp.StatusCode)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
