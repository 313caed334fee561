package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

const (
	// DefaultGeminiURL is the public Gemini REST endpoint.
	DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

	serviceName        = "generation"
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 8 << 20
)

// topLevelKeys are request fields that live beside generationConfig rather
// than inside it.
var topLevelKeys = map[string]struct{}{
	"systemInstruction": {},
	"safetySettings":    {},
	"tools":             {},
	"toolConfig":        {},
	"cachedContent":     {},
}

// GeminiConfig holds the Gemini client options
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     relay.Logger
	Metrics    relay.Metrics
}

// GeminiClient calls the generateContent method of the Gemini REST API
type GeminiClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  relay.Logger
	metrics relay.Metrics
}

var _ Generator = (*GeminiClient)(nil)

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(config GeminiConfig) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", relay.ErrConfig)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		logger:  relay.LoggerOrNoop(config.Logger),
		metrics: relay.MetricsOrNoop(config.Metrics),
	}, nil
}

// Generate sends one generateContent call and returns the concatenated text
// of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	startTime := time.Now()

	body, err := json.Marshal(buildRequestBody(req))
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", relay.ErrUpstream, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", relay.ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	c.metrics.RecordUpstreamCallDuration(serviceName, "generate_content", time.Since(startTime))
	if err != nil {
		c.metrics.RecordUpstreamCall(serviceName, "generate_content", "error")
		c.logger.Error("generation request failed",
			relay.Field{Key: "model", Value: req.Model},
			relay.Field{Key: "error", Value: err})
		return "", fmt.Errorf("%w: HTTP request failed: %v", relay.ErrUpstream, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.RecordUpstreamCall(serviceName, "generate_content", "error")
		return "", fmt.Errorf("%w: read response body: %v", relay.ErrUpstream, err)
	}
	c.metrics.RecordUpstreamCall(serviceName, "generate_content", fmt.Sprintf("%d", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr geminiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("%w: Gemini API error (%d): %s", relay.ErrUpstream, resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("%w: Gemini API error (%d): %s", relay.ErrUpstream, resp.StatusCode, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", relay.ErrUpstream, err)
	}
	if len(parsed.Candidates) == 0 {
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt blocked: %s", relay.ErrUpstream, parsed.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: no candidates returned", relay.ErrUpstream)
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

// buildRequestBody places the prompt in contents and splits config between the
// top level of the request and generationConfig.
func buildRequestBody(req Request) map[string]interface{} {
	body := map[string]interface{}{
		"contents": []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
	}

	generationConfig := make(map[string]json.RawMessage)
	for key, value := range req.Config {
		if _, ok := topLevelKeys[key]; ok {
			body[key] = value
			continue
		}
		generationConfig[key] = value
	}
	if len(generationConfig) > 0 {
		body["generationConfig"] = generationConfig
	}
	return body
}
