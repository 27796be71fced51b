package transmit

import (
	"errors"
	"net/http"
)

var (
	// ErrForbidden is returned by Subscribe when the channel's authorization
	// callback denies access.
	ErrForbidden = errors.New("channel subscription forbidden")

	// ErrAuthorizationFault is returned by Subscribe when the authorization
	// callback fails or panics. It is joined with the underlying cause.
	ErrAuthorizationFault = errors.New("channel authorization failed")

	// ErrUnknownStream is returned when an operation references a uid that is
	// not registered, or whose stream closed while the operation was running.
	ErrUnknownStream = errors.New("unknown stream")

	// ErrDuplicateStream is returned when a stream uid is already registered.
	ErrDuplicateStream = errors.New("stream uid already registered")

	// ErrTransportSend is returned by Broadcast when the relay transport
	// rejects the message. It is joined with the underlying cause.
	ErrTransportSend = errors.New("failed to relay message through transport")

	// ErrInvalidMessage is returned when a message cannot be encoded to or
	// decoded from JSON.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrEmptyChannel is returned when a channel name is empty.
	ErrEmptyChannel = errors.New("channel name must not be empty")

	// ErrNilAuthorizer is returned when Authorize is called with a nil callback.
	ErrNilAuthorizer = errors.New("authorization callback must not be nil")

	// ErrClosed is returned by operations on a closed Transmit.
	ErrClosed = errors.New("transmit is closed")
)

// StatusCode maps an error returned by Transmit to the HTTP status the
// HTTP boundary responds with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusNoContent
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAuthorizationFault):
		return http.StatusInternalServerError
	case errors.Is(err, ErrUnknownStream):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateStream):
		return http.StatusConflict
	case errors.Is(err, ErrEmptyChannel), errors.Is(err, ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
