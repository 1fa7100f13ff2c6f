package enhance

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScale is returned for a scale factor other than 2 or 4.
	ErrInvalidScale = errors.New("enhance: scale must be 2 or 4")

	// ErrEmptyImage is returned when there are no image bytes to send.
	ErrEmptyImage = errors.New("enhance: image data is empty")

	// ErrResponseTooLarge is wrapped when a response body exceeds the limit.
	ErrResponseTooLarge = errors.New("enhance: response body too large")
)

// RequestError is a failed backend call. Message is the text shown to the
// user and written to the page log.
type RequestError struct {
	// Status is the HTTP status code, or 0 for transport failures.
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// serverError builds the error for a non-2xx response. body, when not
// blank, becomes the message.
func serverError(status int, body string) *RequestError {
	if body == "" {
		body = fmt.Sprintf("Server error %d", status)
	}
	return &RequestError{Status: status, Message: body}
}

// ValidationError rejects an upload before any request is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
