package nostrchess

import (
	"errors"
	"fmt"
)

// Sentinel errors for client operations.
var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrNoSigner indicates Publish was called without a private key.
	ErrNoSigner = errors.New("no signing key configured")

	// ErrUnknownGame indicates no game start is stored for the id.
	ErrUnknownGame = errors.New("unknown game")
)

// PublishError wraps a failure to publish an event.
type PublishError struct {
	// EventID is empty when signing failed.
	EventID string
	// Op is the step that failed ("sign", "verify", "ingest", "encode").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PublishError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("publish %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("publish %s event %s: %v", e.Op, e.EventID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PublishError) Unwrap() error {
	return e.Err
}
