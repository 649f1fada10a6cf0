package dispatch

import (
	"errors"
	"fmt"
)

// Code classifies dispatch failures
type Code string

const (
	CodeInvalidFormat        Code = "invalid_format"
	CodeDuplicate            Code = "duplicate"
	CodeMissingRequiredMedia Code = "missing_required_media"
	CodeNoEligibleRecipients Code = "no_eligible_recipients"
	CodeCollaboratorFailure  Code = "collaborator_failure"
)

// Error is a classified dispatch error. Two errors match with errors.Is when
// their codes are equal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidFormat        = &Error{Code: CodeInvalidFormat, Message: "recipient is neither a valid phone nor a valid email"}
	ErrDuplicate            = &Error{Code: CodeDuplicate, Message: "recipient already selected"}
	ErrMissingRequiredMedia = &Error{Code: CodeMissingRequiredMedia, Message: "template header requires media but none was supplied"}
	ErrNoEligibleRecipients = &Error{Code: CodeNoEligibleRecipients, Message: "no eligible recipients"}
	ErrCollaboratorFailure  = &Error{Code: CodeCollaboratorFailure, Message: "delivery collaborator failed"}
)

var errNotConfigured = errors.New("collaborator not configured")

// CollaboratorFailure wraps a transport or provider error
func CollaboratorFailure(collaborator string, err error) *Error {
	return &Error{
		Code:    CodeCollaboratorFailure,
		Message: collaborator + " request failed",
		Err:     err,
	}
}

// NoEligibleRecipients reports an empty recipient list after filtering
func NoEligibleRecipients(excluded int) *Error {
	return &Error{
		Code:    CodeNoEligibleRecipients,
		Message: fmt.Sprintf("no eligible recipients (%d excluded)", excluded),
	}
}
