package errors

import "fmt"

// MalformedEventError indicates an event that violates the wire schema.
// Such events are dropped and never stored.
type MalformedEventError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *MalformedEventError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed event: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed event: %s", e.Reason)
}

// InvalidSignatureError indicates an id or signature mismatch.
type InvalidSignatureError struct {
	EventID string
	Reason  string
}

// Error implements the error interface.
func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid signature on event %s: %s", e.EventID, e.Reason)
}

// IllegalSuccessorError indicates a well-formed move that is not a legal
// continuation of its parent position.
type IllegalSuccessorError struct {
	MoveID   string
	ParentID string
	Err      error
}

// Error implements the error interface.
func (e *IllegalSuccessorError) Error() string {
	return fmt.Sprintf("move %s is not a legal successor of %s: %v", e.MoveID, e.ParentID, e.Err)
}

// Unwrap returns the underlying rules error.
func (e *IllegalSuccessorError) Unwrap() error {
	return e.Err
}

// ConnectionError describes a relay transport failure. It is always transient.
type ConnectionError struct {
	URL string
	Op  string
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("relay %s: %s: %v", e.URL, e.Op, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}
