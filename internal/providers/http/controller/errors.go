package controller

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/netctl/internal/providers/http/challenge"
	"github.com/GriffinCanCode/netctl/internal/providers/http/validation"
	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

var (
	// ErrTransport marks network level failures
	ErrTransport = errors.New("transport error")
	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("controller is closed")
)

// Kind classifies a failure reported to a delegate
type Kind int

const (
	KindInvalidResponse Kind = iota + 1
	KindUnexpectedStatusCode
	KindUnexpectedMimeType
	KindTransport
	KindAuthenticationCancelled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidResponse:
		return "invalid_response"
	case KindUnexpectedStatusCode:
		return "unexpected_status_code"
	case KindUnexpectedMimeType:
		return "unexpected_mime_type"
	case KindTransport:
		return "transport"
	case KindAuthenticationCancelled:
		return "authentication_cancelled"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidResponse:
		return validation.ErrInvalidResponse
	case KindUnexpectedStatusCode:
		return validation.ErrUnexpectedStatusCode
	case KindUnexpectedMimeType:
		return validation.ErrUnexpectedMimeType
	case KindAuthenticationCancelled:
		return challenge.ErrCancelled
	default:
		return ErrTransport
	}
}

// Error is the failure payload handed to RequestDidFail. Title and Detail
// are always human readable; Status is nil when no response was obtained.
type Error struct {
	Kind   Kind
	Title  string
	Detail string
	Status *types.Status
	Err    error
}

func (e *Error) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Status != nil {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status.Code())
	}
	return msg
}

// Unwrap exposes both the kind's sentinel and the underlying cause
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// kindOf maps a validation error to its Kind
func kindOf(err error) Kind {
	switch {
	case errors.Is(err, validation.ErrUnexpectedStatusCode):
		return KindUnexpectedStatusCode
	case errors.Is(err, validation.ErrUnexpectedMimeType):
		return KindUnexpectedMimeType
	case errors.Is(err, validation.ErrInvalidResponse):
		return KindInvalidResponse
	case errors.Is(err, challenge.ErrCancelled):
		return KindAuthenticationCancelled
	default:
		return KindTransport
	}
}

func transportError(err error) *Error {
	kind := kindOf(err)
	if kind != KindAuthenticationCancelled {
		kind = KindTransport
	}
	title := "The request could not be completed"
	if kind == KindAuthenticationCancelled {
		title = "Authentication was cancelled"
	}
	return &Error{Kind: kind, Title: title, Err: err}
}
