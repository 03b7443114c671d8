package protocol

import (
	"errors"
	"fmt"
)

// Error is a failure raised while applying an operation or message to one
// entity. Errors are local to the entity they name; they never invalidate
// unrelated state.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Kind and ID identify the entity the operation referenced.
	Kind Kind
	ID   string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the referenced id is absent from local state.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeAlreadyExists indicates a create for an id that is already live.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// ErrCodeInvalidDescriptor indicates a collider descriptor that cannot
	// produce a shape (unknown type, degenerate or empty geometry).
	ErrCodeInvalidDescriptor ErrorCode = "INVALID_DESCRIPTOR"

	// ErrCodeTransformInvariant indicates an edit that would break the node
	// hierarchy (cycle, self-parenting).
	ErrCodeTransformInvariant ErrorCode = "TRANSFORM_INVARIANT_VIOLATION"

	// ErrCodeInvalidMessage indicates a message that could not be decoded or
	// is missing required data.
	ErrCodeInvalidMessage ErrorCode = "INVALID_MESSAGE"
)

// Sentinels for errors.Is. Matching is by Code only.
var (
	ErrNotFound           = &Error{Code: ErrCodeNotFound, Message: "entity not found"}
	ErrAlreadyExists      = &Error{Code: ErrCodeAlreadyExists, Message: "entity already exists"}
	ErrInvalidDescriptor  = &Error{Code: ErrCodeInvalidDescriptor, Message: "invalid collider descriptor"}
	ErrTransformInvariant = &Error{Code: ErrCodeTransformInvariant, Message: "transform invariant violation"}
	ErrInvalidMessage     = &Error{Code: ErrCodeInvalidMessage, Message: "invalid message"}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ID != "" {
		msg = fmt.Sprintf("%s (%s=%s)", msg, e.Kind, e.ID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NotFound creates an ErrCodeNotFound error for kind/id.
func NotFound(kind Kind, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Kind:    kind,
		ID:      id,
		Message: fmt.Sprintf("%s not found", kind),
	}
}

// AlreadyExists creates an ErrCodeAlreadyExists error for kind/id.
func AlreadyExists(kind Kind, id string) *Error {
	return &Error{
		Code:    ErrCodeAlreadyExists,
		Kind:    kind,
		ID:      id,
		Message: fmt.Sprintf("%s already exists", kind),
	}
}

// InvalidDescriptor creates an ErrCodeInvalidDescriptor error for a node.
func InvalidDescriptor(nodeID, message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidDescriptor,
		Kind:    KindNode,
		ID:      nodeID,
		Message: message,
	}
}

// TransformInvariant creates an ErrCodeTransformInvariant error for a node.
func TransformInvariant(nodeID, message string) *Error {
	return &Error{
		Code:    ErrCodeTransformInvariant,
		Kind:    KindNode,
		ID:      nodeID,
		Message: message,
	}
}

// InvalidMessage wraps a decode or validation failure.
func InvalidMessage(subject Subject, err error) *Error {
	return &Error{
		Code:    ErrCodeInvalidMessage,
		Message: fmt.Sprintf("cannot handle %s", subject),
		Err:     err,
	}
}

// IsNotFound returns true if err is (or wraps) a not-found error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsInvalidDescriptor returns true if err is (or wraps) an invalid descriptor error.
func IsInvalidDescriptor(err error) bool {
	return hasCode(err, ErrCodeInvalidDescriptor)
}

// IsTransformInvariant returns true if err is (or wraps) a hierarchy violation.
func IsTransformInvariant(err error) bool {
	return hasCode(err, ErrCodeTransformInvariant)
}

func hasCode(err error, code ErrorCode) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
