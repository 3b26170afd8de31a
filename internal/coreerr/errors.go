// Package coreerr defines the error taxonomy shared by the playback engine,
// the cache, the resolver, and the download control registry. It is a
// taxonomy of error kinds, not a set of concrete Go error types: every
// failure surfaced to a caller or an event carries one of these kinds plus a
// human-readable message and, where applicable, the wrapped cause.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds from the error handling design.
type Kind string

const (
	KindLibraryLoad       Kind = "library_load"
	KindDeviceUnavailable Kind = "device_unavailable"
	KindStreamCreate      Kind = "stream_create"
	KindPlaybackStart     Kind = "playback_start"
	KindInvalidPosition   Kind = "invalid_position"
	KindSeekError         Kind = "seek_error"
	KindSeekNotSupported  Kind = "seek_not_supported"
	KindInvalidInput      Kind = "invalid_input"
	KindResolverFailure   Kind = "resolver_failure"
	KindDownloadFailed    Kind = "download_failed"
	KindValidationFailed  Kind = "validation_failed"
	KindCacheIndexCorrupt Kind = "cache_index_corrupt"
	KindNotInitialized    Kind = "not_initialized"
)

// Error is the concrete error type used throughout this module.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, coreerr.New(coreerr.KindSeekError, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
