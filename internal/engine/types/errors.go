package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Numeric error codes carried on ERROR events. HTTP failures use the literal
// status code instead.
const (
	CodeNetworkError = 1000
	CodeUnknownSize  = 1001
	CodeParseError   = 1002
	CodeTimeout      = http.StatusRequestTimeout
)

var (
	ErrInvalidRequest = errors.New("loader: invalid request")
	ErrUnknownSize    = errors.New("loader: server did not report content length")
	ErrNetwork        = errors.New("loader: network error")
	ErrTimeout        = errors.New("loader: request timed out")
	ErrParse          = errors.New("loader: malformed payload")
	ErrInvalidState   = errors.New("loader: operation not valid in current state")
	ErrInvalidFormat  = errors.New("loader: unknown data format")
	ErrAborted        = errors.New("loader: request aborted")
)

// HTTPStatusError is reported when a response status is 400 or above.
type HTTPStatusError struct {
	Code   int
	Status string
}

func (e *HTTPStatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %s", e.Class(), e.Status)
	}
	return fmt.Sprintf("%s: %d %s", e.Class(), e.Code, http.StatusText(e.Code))
}

// Class returns "server error" for 5xx and "request error" for 4xx.
func (e *HTTPStatusError) Class() string {
	if e.Code >= 500 {
		return "server error"
	}
	return "request error"
}

// ErrorCode maps a transfer failure to the numeric code published on ERROR events.
func ErrorCode(err error) int {
	var statusErr *HTTPStatusError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &statusErr):
		return statusErr.Code
	case errors.Is(err, ErrUnknownSize):
		return CodeUnknownSize
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrParse):
		return CodeParseError
	default:
		return CodeNetworkError
	}
}
