package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mihaimyh/gorelay/pkg/internal/httputil"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

// Forwarder is the part of Proxy the HTTP handler depends on.
type Forwarder interface {
	Configured() bool
	Forward(ctx context.Context, body json.RawMessage) (*Response, error)
}

// Handler exposes the analytics proxy over HTTP.
type Handler struct {
	forwarder Forwarder
}

// NewHandler creates the analytics HTTP handler.
func NewHandler(forwarder Forwarder) *Handler {
	return &Handler{forwarder: forwarder}
}

// Proxy handles POST /api/analytics/proxy.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	if _, ok := relay.PrincipalFromContext(r.Context()); !ok {
		httputil.WriteRelayError(w, "Unauthorized", relay.ErrUnauthenticated)
		return
	}

	if !h.forwarder.Configured() {
		writeConfigError(w)
		return
	}

	var body json.RawMessage
	if err := httputil.DecodeJSON(w, r, &body); err != nil {
		httputil.WriteRelayError(w, "Invalid request body", err)
		return
	}

	resp, err := h.forwarder.Forward(r.Context(), body)
	if err != nil {
		if errors.Is(err, relay.ErrConfig) {
			writeConfigError(w)
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "Analytics request failed", "")
		return
	}

	if len(resp.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func writeConfigError(w http.ResponseWriter) {
	httputil.WriteError(w, http.StatusInternalServerError, "ConfigError", "analytics is not configured")
}
