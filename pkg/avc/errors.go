package avc

import (
	"errors"
	"fmt"
)

// Sentinel reasons for a denial line that cannot be turned into a record.
var (
	ErrNoMarker                  = errors.New("no avc: marker")
	ErrUnknownVerdict            = errors.New("unknown verdict")
	ErrEmptyOperationList        = errors.New("empty operation list")
	ErrUnterminatedOperationList = errors.New("unterminated operation list")
	ErrMissingForClause          = errors.New("missing for clause")
	ErrMissingRequiredAttribute  = errors.New("missing required attribute")
	ErrInvalidPermissiveValue    = errors.New("invalid permissive value")
)

// ParseError describes why a single denial line was rejected. The record it
// belongs to is void; the surrounding pipeline keeps going.
type ParseError struct {
	// Reason is one of the Err* sentinels above.
	Reason error

	// Detail is the offending token or attribute key, if any.
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("parsing avc line: %v", e.Reason)
	}
	return fmt.Sprintf("parsing avc line: %v: %q", e.Reason, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}

// ReasonLabel maps a parse error to a short, stable label for metrics.
func ReasonLabel(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNoMarker):
		return "no_marker"
	case errors.Is(err, ErrUnknownVerdict):
		return "unknown_verdict"
	case errors.Is(err, ErrEmptyOperationList):
		return "empty_operations"
	case errors.Is(err, ErrUnterminatedOperationList):
		return "unterminated_operations"
	case errors.Is(err, ErrMissingForClause):
		return "missing_for"
	case errors.Is(err, ErrMissingRequiredAttribute):
		return "missing_attribute"
	case errors.Is(err, ErrInvalidPermissiveValue):
		return "invalid_permissive"
	default:
		return "other"
	}
}
