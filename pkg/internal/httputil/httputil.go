// Package httputil holds the request/response helpers shared by the relay handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

const (
	// DefaultBodyLimit bounds JSON request bodies.
	DefaultBodyLimit int64 = 1 << 20

	// WebhookBodyLimit bounds signed webhook payloads.
	WebhookBodyLimit int64 = 256 * 1024
)

// ErrPayloadTooLarge is returned when the request body exceeds the size limit
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrEmptyBody is returned by ReadBodyStrict for a zero-length body
var ErrEmptyBody = errors.New("empty body")

// ErrorBody is the JSON error envelope returned by every relay endpoint.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ReadBodyStrict reads the request body and validates it's not empty.
// Enforces a size limit to prevent memory exhaustion.
func ReadBodyStrict(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close() //nolint:errcheck // read-side close

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("%w (max %d bytes)", ErrPayloadTooLarge, limit)
		}
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

// DecodeJSON reads a bounded JSON body into dst.
// Every failure wraps relay.ErrBadRequest.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body, err := ReadBodyStrict(w, r, DefaultBodyLimit)
	if err != nil {
		return fmt.Errorf("%w: %v", relay.ErrBadRequest, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", relay.ErrBadRequest, err)
	}
	return nil
}

// WriteJSON writes a JSON response with proper headers
func WriteJSON(w http.ResponseWriter, code int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes the error envelope with the given status code.
func WriteError(w http.ResponseWriter, code int, message, details string) {
	_ = WriteJSON(w, code, ErrorBody{Error: message, Details: details})
}

// WriteRelayError classifies err with relay.StatusCode and writes the envelope.
// The message is used as the envelope's error field, err becomes its details.
func WriteRelayError(w http.ResponseWriter, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	WriteError(w, relay.StatusCode(err), message, details)
}
