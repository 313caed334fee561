package billing

import (
	"errors"
	"net/http"

	"github.com/mihaimyh/gorelay/pkg/internal/httputil"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

// SignatureHeader carries the payments provider's webhook signature.
const SignatureHeader = "Stripe-Signature"

type checkoutRequest struct {
	UserID string `json:"userId"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
}

type portalResponse struct {
	URL string `json:"url"`
}

type webhookResponse struct {
	Received bool `json:"received"`
}

// Handler exposes the billing relay over HTTP.
// CheckoutSession and PortalSession expect an authenticated principal in the
// request context; Webhook authenticates with the signature header instead.
type Handler struct {
	service *Service
	logger  relay.Logger
	metrics relay.Metrics
}

// NewHandler creates the billing HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
		logger:  service.logger,
		metrics: service.metrics,
	}
}

// CheckoutSession handles POST /api/billing/create-checkout-session.
func (h *Handler) CheckoutSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := relay.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteRelayError(w, "Unauthorized", relay.ErrUnauthenticated)
		return
	}

	var req checkoutRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteRelayError(w, "Invalid request body", err)
		return
	}

	sessionID, err := h.service.CreateCheckoutSession(r.Context(), principal, req.UserID)
	if err != nil {
		httputil.WriteRelayError(w, checkoutErrorMessage(err), err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, checkoutResponse{SessionID: sessionID})
}

// PortalSession handles POST /api/billing/create-portal-session.
// The request body is ignored; the customer is resolved from the principal only.
func (h *Handler) PortalSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := relay.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteRelayError(w, "Unauthorized", relay.ErrUnauthenticated)
		return
	}

	url, err := h.service.CreatePortalSession(r.Context(), principal)
	if err != nil {
		message := "Failed to create portal session"
		if errors.Is(err, relay.ErrProfileNotFound) {
			message = "No billing customer found"
		}
		httputil.WriteRelayError(w, message, err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, portalResponse{URL: url})
}

// Webhook handles POST /api/billing/webhook.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		h.metrics.RecordWebhookError("missing_signature")
		httputil.WriteError(w, http.StatusBadRequest, "InvalidSignature", "missing "+SignatureHeader+" header")
		return
	}

	payload, err := httputil.ReadBodyStrict(w, r, httputil.WebhookBodyLimit)
	if err != nil {
		if errors.Is(err, httputil.ErrPayloadTooLarge) {
			h.metrics.RecordWebhookError("payload_too_large")
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "Payload too large", err.Error())
			return
		}
		h.metrics.RecordWebhookError("invalid_payload")
		httputil.WriteError(w, http.StatusBadRequest, "Invalid payload", err.Error())
		return
	}

	event, outcome, err := h.service.IngestWebhook(r.Context(), payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrInvalidSignature):
			h.metrics.RecordWebhookError("invalid_signature")
			h.logger.Warn("webhook signature rejected", relay.Field{Key: "error", Value: err})
			httputil.WriteError(w, http.StatusBadRequest, "InvalidSignature", err.Error())
		case errors.Is(err, relay.ErrBadRequest):
			h.metrics.RecordWebhookError("invalid_payload")
			httputil.WriteError(w, http.StatusBadRequest, "Invalid payload", err.Error())
		default:
			httputil.WriteError(w, http.StatusInternalServerError, "Webhook processing failed", err.Error())
		}
		return
	}

	h.logger.Debug("webhook processed",
		relay.Field{Key: "event_id", Value: event.ID},
		relay.Field{Key: "event_type", Value: event.Type},
		relay.Field{Key: "outcome", Value: string(outcome)})
	_ = httputil.WriteJSON(w, http.StatusOK, webhookResponse{Received: true})
}

func checkoutErrorMessage(err error) string {
	switch {
	case errors.Is(err, relay.ErrBadRequest):
		return "userId is required"
	case errors.Is(err, relay.ErrForbidden):
		return "Forbidden"
	case errors.Is(err, relay.ErrProfileNotFound):
		return "Profile not found"
	default:
		return "Failed to create checkout session"
	}
}
