package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gorelay/pkg/internal/httputil"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

type fakeGenerator struct {
	requests []Request
	text     string
	err      error
}

func (g *fakeGenerator) Generate(_ context.Context, req Request) (string, error) {
	g.requests = append(g.requests, req)
	return g.text, g.err
}

func proxyRequest(body string, authed bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/generation/proxy", strings.NewReader(body))
	if authed {
		req = req.WithContext(relay.WithPrincipal(req.Context(), &relay.Principal{ID: "user-1"}))
	}
	return req
}

func TestHandler_Proxy(t *testing.T) {
	gen := &fakeGenerator{text: "generated text"}
	rec := httptest.NewRecorder()

	NewHandler(gen, nil).Proxy(rec, proxyRequest(`{"prompt":"  hi ","model":"gemini-pro","config":{"temperature":0.5}}`, true))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "generated text", rec.Body.String())
	require.Len(t, gen.requests, 1)
	assert.Equal(t, "  hi ", gen.requests[0].Prompt)
	assert.Equal(t, "gemini-pro", gen.requests[0].Model)
	assert.JSONEq(t, `0.5`, string(gen.requests[0].Config["temperature"]))
}

func TestHandler_Proxy_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing model", `{"prompt":"hi"}`},
		{"missing prompt", `{"model":"gemini-pro"}`},
		{"blank prompt", `{"prompt":"   ","model":"gemini-pro"}`},
		{"malformed json", `{"prompt":`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			rec := httptest.NewRecorder()

			NewHandler(gen, nil).Proxy(rec, proxyRequest(tt.body, true))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, gen.requests, "no upstream call expected")
		})
	}
}

func TestHandler_Proxy_Unauthenticated(t *testing.T) {
	gen := &fakeGenerator{}
	rec := httptest.NewRecorder()

	NewHandler(gen, nil).Proxy(rec, proxyRequest(`{"prompt":"hi","model":"m"}`, false))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, gen.requests)
}

func TestHandler_Proxy_UpstreamFailure(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: Gemini API error (429): quota exceeded", relay.ErrUpstream)}
	rec := httptest.NewRecorder()

	NewHandler(gen, nil).Proxy(rec, proxyRequest(`{"prompt":"hi","model":"m"}`, true))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body httputil.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Failed to generate content", body.Error)
	assert.Contains(t, body.Details, "quota exceeded")
}
