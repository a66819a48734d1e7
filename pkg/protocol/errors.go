package protocol

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/notchkit/pkg/descriptor"
)

// Code classifies a failed call.
type Code string

const (
	CodeIdentityMismatch    Code = "identityMismatch"
	CodeFeatureDisabled     Code = "featureDisabled"
	CodeUnauthorized        Code = "unauthorized"
	CodeMalformedDescriptor Code = "malformedDescriptor"
	CodeDecodeFailure       Code = "decodeFailure"
	CodeUnknownMethod       Code = "unknownMethod"
	CodeRateLimited         Code = "rateLimited"
	CodeUnavailable         Code = "unavailable"
)

// Error is the structured failure carried on a reply.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrIdentityMismatch = &Error{Code: CodeIdentityMismatch, Message: "claimed identity does not match connection"}
	ErrFeatureDisabled  = &Error{Code: CodeFeatureDisabled, Message: "extensions are disabled"}
	ErrUnauthorized     = &Error{Code: CodeUnauthorized, Message: "extension is not authorized"}
	ErrUnknownMethod    = &Error{Code: CodeUnknownMethod, Message: "unknown method"}
	ErrRateLimited      = &Error{Code: CodeRateLimited, Message: "too many requests"}
	ErrUnavailable      = &Error{Code: CodeUnavailable, Message: "host is shutting down"}
)

// Errorf builds an error with the given code.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError converts any error into its wire form. Descriptor failures keep
// their field; anything unrecognized becomes a decode failure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	var fe *descriptor.FieldError
	if errors.As(err, &fe) {
		return &Error{Code: CodeMalformedDescriptor, Message: fe.Reason, Field: fe.Field}
	}
	if errors.Is(err, descriptor.ErrMalformed) {
		return &Error{Code: CodeMalformedDescriptor, Message: err.Error()}
	}
	return &Error{Code: CodeDecodeFailure, Message: err.Error()}
}
