package generation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/gorelay/pkg/internal/httputil"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

// Handler exposes a Generator over HTTP.
type Handler struct {
	generator Generator
	validate  *validator.Validate
	logger    relay.Logger
}

// NewHandler creates the generation HTTP handler.
func NewHandler(generator Generator, logger relay.Logger) *Handler {
	return &Handler{
		generator: generator,
		validate:  validator.New(),
		logger:    relay.LoggerOrNoop(logger),
	}
}

// Proxy handles POST /api/generation/proxy. The generated text is written as
// the raw response body.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	if _, ok := relay.PrincipalFromContext(r.Context()); !ok {
		httputil.WriteRelayError(w, "Unauthorized", relay.ErrUnauthenticated)
		return
	}

	var req Request
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteRelayError(w, "Invalid request body", err)
		return
	}
	req.Model = strings.TrimSpace(req.Model)

	// Whitespace-only prompts count as missing; the prompt itself is forwarded untouched.
	presence := req
	presence.Prompt = strings.TrimSpace(req.Prompt)
	if err := h.validate.Struct(presence); err != nil {
		httputil.WriteRelayError(w, "Prompt and model are required", fmt.Errorf("%w: %v", relay.ErrBadRequest, err))
		return
	}

	text, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		h.logger.Error("generation failed",
			relay.Field{Key: "model", Value: req.Model},
			relay.Field{Key: "error", Value: err})
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to generate content", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}
