// Package apperr defines the typed error kinds surfaced across the
// coordinator.
package apperr

import "fmt"

// Kind enumerates the error categories clients can recover from.
type Kind string

const (
	RoomNotFound          Kind = "RoomNotFound"
	RoomFinished          Kind = "RoomFinished"
	RoomInProgress        Kind = "RoomInProgress"
	InvalidTransition     Kind = "InvalidTransition"
	NotAuthorized         Kind = "NotAuthorized"
	InsufficientData      Kind = "InsufficientData"
	MarketsClosed         Kind = "MarketsClosed"
	RecommendationBlocked Kind = "RecommendationBlocked"
	InsufficientCash      Kind = "InsufficientCash"
	InsufficientShares    Kind = "InsufficientShares"
	InvalidRequest        Kind = "InvalidRequest"
	Unavailable           Kind = "Unavailable"
)

// Error is the typed error returned by every coordinator operation that can
// fail for a reason a caller could plausibly act on.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
