package provider

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/taskprovider/internal/uri"
)

// Sentinel errors returned by dispatch operations
var (
	// ErrUnrecognizedIdentifier is returned when an identifier does not match a
	// pattern the operation accepts
	ErrUnrecognizedIdentifier = errors.New("unrecognized identifier")

	// ErrWriteFailed is returned when the store did not produce a new row
	ErrWriteFailed = errors.New("write failed")

	// ErrNotImplemented is returned for operations the store cannot serve
	ErrNotImplemented = errors.New("not implemented")

	// ErrNotInitialized is returned when dispatching before Initialize
	// succeeded or after Close
	ErrNotInitialized = errors.New("provider not initialized")
)

// UnrecognizedIdentifierError reports an identifier the operation cannot route
type UnrecognizedIdentifierError struct {
	Op  string
	URI uri.Identifier
	// Reason is set when the identifier matched but cannot be served
	Reason string
}

func (e *UnrecognizedIdentifierError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: unknown uri: %s: %s", e.Op, e.URI, e.Reason)
	}
	return fmt.Sprintf("%s: unknown uri: %s", e.Op, e.URI)
}

func (e *UnrecognizedIdentifierError) Is(target error) bool {
	return target == ErrUnrecognizedIdentifier
}

// WriteFailedError reports a store write that produced no row. Err holds the
// store's cause when there was one.
type WriteFailedError struct {
	Op  string
	URI uri.Identifier
	Err error
}

func (e *WriteFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: failed to insert row into %s: %v", e.Op, e.URI, e.Err)
	}
	return fmt.Sprintf("%s: failed to insert row into %s", e.Op, e.URI)
}

func (e *WriteFailedError) Is(target error) bool {
	return target == ErrWriteFailed
}

func (e *WriteFailedError) Unwrap() error {
	return e.Err
}

// NotImplementedError reports an operation the configured store lacks
type NotImplementedError struct {
	Op string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s: not yet implemented", e.Op)
}

func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

// IsUnrecognized checks if err is an unrecognized identifier error
func IsUnrecognized(err error) bool {
	return errors.Is(err, ErrUnrecognizedIdentifier)
}

// IsWriteFailed checks if err is a write failure
func IsWriteFailed(err error) bool {
	return errors.Is(err, ErrWriteFailed)
}

// IsNotImplemented checks if err is a not implemented error
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

// IsNotInitialized checks if err reports a provider that is not ready
func IsNotInitialized(err error) bool {
	return errors.Is(err, ErrNotInitialized)
}
