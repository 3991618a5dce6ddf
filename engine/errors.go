package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRequest is returned for bad json or a missing/mistyped field
	ErrMalformedRequest = errors.New("malformed request")

	// ErrUnknownMethod is returned when the method name is not recognised
	ErrUnknownMethod = errors.New("unknown method")
)

// ProtocolError is a decode failure that still carries whatever id could be
// recovered from the frame, so the reply can be correlated when possible.
type ProtocolError struct {
	ID      *string
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

func (e *ProtocolError) Unwrap() error {
	return ErrMalformedRequest
}

func malformed(id *string, detail string) *ProtocolError {
	return &ProtocolError{ID: id, Message: fmt.Sprintf("%s: %s", ErrMalformedRequest, detail)}
}
