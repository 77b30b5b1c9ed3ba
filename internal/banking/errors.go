package banking

import (
	"errors"
	"fmt"
)

// ErrorCode is the canonical error taxonomy shared by every adapter.
type ErrorCode string

const (
	// ErrCodeDisconnected means the vendor reports the credential or
	// enrollment is no longer valid and the user must re-authorize.
	ErrCodeDisconnected ErrorCode = "disconnected"

	// ErrCodeRateLimited is handled internally by the retry wrapper and
	// should rarely escape an adapter.
	ErrCodeRateLimited ErrorCode = "rate_limited"

	// ErrCodeAlreadyAuthorized marks an idempotent re-auth attempt.
	ErrCodeAlreadyAuthorized ErrorCode = "already_authorized"

	// ErrCodeUnknown is a vendor error not in the known mapping. The raw
	// vendor code is retained for future mapping, never swallowed.
	ErrCodeUnknown ErrorCode = "unknown"
)

// Error is the single error type adapters surface at the vendor boundary.
type Error struct {
	Code     ErrorCode
	Provider Provider
	Message  string

	// RawCode is the untranslated vendor error code, kept for diagnosis
	// of unknown mappings.
	RawCode string
}

func (e *Error) Error() string {
	if e.RawCode != "" {
		return fmt.Sprintf("%s: %s (%s): %s", e.Provider, e.Code, e.RawCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

// NewError builds a taxonomy error for a provider boundary.
func NewError(provider Provider, code ErrorCode, rawCode, message string) *Error {
	return &Error{Code: code, Provider: provider, Message: message, RawCode: rawCode}
}

// CodeOf extracts the canonical code from err, or ErrCodeUnknown.
func CodeOf(err error) ErrorCode {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrCodeUnknown
}

// IsDisconnected reports whether err means the user must re-authorize.
func IsDisconnected(err error) bool {
	return CodeOf(err) == ErrCodeDisconnected
}
