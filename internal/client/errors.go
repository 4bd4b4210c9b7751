package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	msgShortenFailed      = "Failed to shorten URL"
	msgShortenUnreachable = "Failed to shorten URL. Please try again later."
	msgFetchFailed        = "Failed to fetch URLs"
	msgFetchUnreachable   = "Failed to fetch URLs. Please try again later."

	maxBodySize = 1 << 20
)

// Kind classifies a failed call to the shortening service.
type Kind int

const (
	// KindNetwork means the request never produced an HTTP response.
	KindNetwork Kind = iota + 1
	// KindServer means a non-2xx response carried an error message.
	KindServer
	// KindServerOpaque means the response could not be interpreted.
	KindServerOpaque
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindServerOpaque:
		return "server_opaque"
	default:
		return "unknown"
	}
}

// Error is returned by every failed client call.
// Message is the best user-facing text available and is what Error returns.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 when err is not a client error.
func KindOf(err error) Kind {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Kind
	}

	return 0
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusError builds the error for a non-2xx response, preferring the
// server's own message over fallback.
func statusError(statusCode int, body io.Reader, fallback string) *Error {
	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(body, maxBodySize)).Decode(&payload); err == nil && payload.Error != "" {
		return &Error{
			Kind:       KindServer,
			StatusCode: statusCode,
			Message:    payload.Error,
		}
	}

	return &Error{
		Kind:       KindServerOpaque,
		StatusCode: statusCode,
		Message:    fallback,
		Err:        fmt.Errorf("unexpected status %d", statusCode),
	}
}

func networkError(err error, message string) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: message,
		Err:     err,
	}
}
