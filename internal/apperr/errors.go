// Package apperr defines the error kinds surfaced by dashboard operations and
// their conversion into short-lived user notices.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindSessionCorruption
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindSessionCorruption:
		return "session_corruption"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error codes.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidCredentials = "invalid_credentials"
	CodeRoleMismatch       = "role_mismatch"
	CodeOperationPending   = "operation_pending"
	CodeOperationCancelled = "operation_cancelled"
	CodeAlreadyRegistered  = "already_registered"
	CodeAuthFailed         = "auth_failed"
	CodeSessionCorrupt     = "session_corrupt"
	CodeNotConfigured      = "not_configured"
)

var statusByKind = map[Kind]int{
	KindValidation:        http.StatusBadRequest,
	KindAuth:              http.StatusUnauthorized,
	KindSessionCorruption: http.StatusUnauthorized,
	KindConfiguration:     http.StatusServiceUnavailable,
}

var statusByCode = map[string]int{
	CodeOperationPending:  http.StatusConflict,
	CodeAlreadyRegistered: http.StatusConflict,
	CodeRoleMismatch:      http.StatusForbidden,
}

type Error struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Validation reports bad form input tied to a single field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidRequest, Field: field, Message: message}
}

func Auth(code, message string, err error) *Error {
	if code == "" {
		code = CodeAuthFailed
	}
	return &Error{Kind: KindAuth, Code: code, Message: message, Err: err}
}

func SessionCorruption(err error) *Error {
	return &Error{Kind: KindSessionCorruption, Code: CodeSessionCorrupt, Message: "stored session is unreadable", Err: err}
}

// Configuration reports a missing setting. key names the setting, not its value.
func Configuration(key, message string) *Error {
	return &Error{Kind: KindConfiguration, Code: CodeNotConfigured, Field: key, Message: message}
}

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HTTPStatus maps any error to a response status.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
