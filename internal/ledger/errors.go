/*
SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error kind. It prefixes every error message so
// Fabric clients, which only see the message string, can classify failures.
type Code string

const (
	CodeAlreadyExists       Code = "ALREADY_EXISTS"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeReferenceNotFound   Code = "REFERENCE_NOT_FOUND"
	CodeNotFound            Code = "NOT_FOUND"
	CodeComplianceViolation Code = "COMPLIANCE_VIOLATION"
	CodePermissionDenied    Code = "PERMISSION_DENIED"
)

// Sentinels for errors.Is checks; they match any *Error with the same code.
var (
	ErrAlreadyExists       = &Error{Code: CodeAlreadyExists}
	ErrValidation          = &Error{Code: CodeValidation}
	ErrReferenceNotFound   = &Error{Code: CodeReferenceNotFound}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrComplianceViolation = &Error{Code: CodeComplianceViolation}
	ErrPermissionDenied    = &Error{Code: CodePermissionDenied}
)

// Error is a domain error returned by contract operations.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a domain error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Errorf builds a domain error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a domain error around an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...) + ": " + cause.Error(), Cause: cause}
}

// CodeOf returns the code of the first domain error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
