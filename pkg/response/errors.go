package response

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConsumed is returned when the body was already read.
	ErrAlreadyConsumed = errors.New("response already consumed")

	// ErrNotAvailable is returned when the exchange produced no body.
	ErrNotAvailable = errors.New("response body not available")

	// ErrNotXML is returned when XML consumption is requested for a body
	// whose media type is not XML.
	ErrNotXML = errors.New("response is not xml")
)

// Error describes a failed or unsuccessful exchange.
type Error struct {
	Status  Status
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (status %d): %s: %v", e.Status, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Status, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf returns the status carried by err, or Unknown if err is not an
// *Error.
func StatusOf(err error) Status {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return Unknown
}
