package license

import (
	"fmt"
	"strings"
)

// Kind is the machine-readable classification of a license error. The
// values match the x-license-error-code header emitted by the license
// server, so they double as the wire representation.
type Kind string

const (
	KindBadKey                  Kind = "BAD_KEY"
	KindGenericError            Kind = "GENERIC_ERROR"
	KindBadIntegrity            Kind = "BAD_INTEGRITY"
	KindIllegalContents         Kind = "ILLEGAL_CONTENTS"
	KindInvalidCredentials      Kind = "INVALID_CREDENTIALS"
	KindIllegalTimeRange        Kind = "ILLEGAL_TIME_RANGE"
	KindInvalidMachine          Kind = "INVALID_MACHINE"
	KindIllegalFeature          Kind = "ILLEGAL_FEATURE"
	KindMaxLicenseCountExceeded Kind = "MAX_LICENSE_COUNT_EXCEEDED"
)

// kindMessages holds the canonical human-readable message for each kind.
// GENERIC_ERROR deliberately has no canonical text.
var kindMessages = map[Kind]string{
	KindBadKey:                  "The license public key is not valid",
	KindBadIntegrity:            "License signature does not match the license contents",
	KindIllegalContents:         "License contents are not valid",
	KindInvalidCredentials:      "The supplied credentials were rejected by the license server",
	KindIllegalTimeRange:        "License is not valid for the current time",
	KindInvalidMachine:          "License is not valid for this machine",
	KindIllegalFeature:          "License does not cover the requested feature",
	KindMaxLicenseCountExceeded: "Maximum number of concurrent licenses exceeded",
}

// KindMessage returns the canonical message for a kind, or the empty
// string for GENERIC_ERROR and unknown kinds.
func KindMessage(kind Kind) string {
	return kindMessages[kind]
}

// ParseKind maps a server-supplied error code string to a Kind. Unmapped
// values default to GENERIC_ERROR rather than failing.
func ParseKind(s string) Kind {
	kind := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := kindMessages[kind]; ok {
		return kind
	}
	return KindGenericError
}

// Error is the tagged error type surfaced by all license operations.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped lower-level error, if any
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a license Error of the same kind. This
// lets callers match sentinel-style with errors.Is(err, &Error{Kind: k}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a license error with the given kind and message.
// An empty message falls back to the kind's canonical message.
func NewError(kind Kind, message string) *Error {
	if message == "" {
		message = KindMessage(kind)
	}
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a license error that wraps a lower-level cause
func WrapError(kind Kind, message string, cause error) *Error {
	err := NewError(kind, message)
	err.Cause = cause
	return err
}

// ServerError builds a license error from a server error code and the
// raw response body. The canonical kind message and the (HTML-stripped)
// body are combined when both are available.
func ServerError(kind Kind, body string) *Error {
	canonical := KindMessage(kind)
	detail := StripHTML(body)

	switch {
	case canonical != "" && detail != "":
		return &Error{Kind: kind, Message: canonical + ": " + detail}
	case canonical != "":
		return &Error{Kind: kind, Message: canonical}
	default:
		return &Error{Kind: kind, Message: detail}
	}
}

// IsKind reports whether err is a license Error tagged with kind
func IsKind(err error, kind Kind) bool {
	var licErr *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			licErr = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return licErr != nil && licErr.Kind == kind
}

// StripHTML reduces an HTML error page to its visible text. Server error
// bodies are occasionally HTML (proxy error pages); showing markup to
// the user is never useful.
func StripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
