// Package errs defines the error classification shared across the pipeline.
// Kinds are assigned where a failure originates (provider client, process
// wrapper, storage client) and translated into HTTP status codes exactly once
// at the API boundary. Callers must never re-derive a class from error text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for boundary translation.
type Kind string

const (
	// Validation marks missing or malformed request parameters.
	Validation Kind = "validation"
	// NotFound marks unknown formats and removed or unavailable assets.
	NotFound Kind = "not_found"
	// Forbidden marks access-restricted source content.
	Forbidden Kind = "forbidden"
	// UpstreamFetch marks a failed source stream retrieval.
	UpstreamFetch Kind = "upstream_fetch"
	// Processing marks an external mux/transcode failure.
	Processing Kind = "processing"
	// Storage marks a durable upload that exhausted its retries.
	Storage Kind = "storage"
	// Internal is the fallback for unclassified failures.
	Internal Kind = "internal"
)

// Error carries a kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and message.
func E(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Ef wraps err with a kind and a formatted message.
func Ef(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf walks the chain and returns the outermost classified kind,
// or Internal if the error carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
