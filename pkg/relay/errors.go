package relay

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthenticated is returned when the Authorization header is absent or malformed
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidToken is returned when the identity provider rejects the bearer token
	ErrInvalidToken = errors.New("invalid token")

	// ErrForbidden is returned when the principal may not act on the requested resource
	ErrForbidden = errors.New("forbidden")

	// ErrProfileNotFound is returned when no profile (or no linked customer) exists
	ErrProfileNotFound = errors.New("profile not found")

	// ErrCustomerLinked is returned when a profile already holds a different customer id
	ErrCustomerLinked = errors.New("profile already linked to another customer")

	// ErrBadRequest is returned for malformed or incomplete input
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidSignature is returned when webhook signature verification fails
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrUpstream is returned when a third-party call fails
	ErrUpstream = errors.New("upstream failure")

	// ErrConfig is returned when required configuration is missing
	ErrConfig = errors.New("configuration error")
)

// StatusCode maps an error from the taxonomy above to an HTTP status code.
// Unclassified errors map to 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidSignature):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
