package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures by how far they are allowed to propagate.
type Kind string

const (
	KindConfiguration Kind = "ConfigurationError"
	KindNotFound      Kind = "ResourceNotFound"
	KindExtraction    Kind = "ExtractionFailure"
	KindIndexBuild    Kind = "IndexBuildFailure"
	KindQuery         Kind = "QueryFailure"
)

var (
	// ErrConfiguration is matched by errors.Is for configuration failures.
	ErrConfiguration = &Error{Kind: KindConfiguration}
	// ErrNotFound is matched by errors.Is for missing folders, files and indexes.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrExtraction is matched by errors.Is for per-file extraction failures.
	ErrExtraction = &Error{Kind: KindExtraction}
	// ErrIndexBuild is matched by errors.Is for embedding or persistence failures.
	ErrIndexBuild = &Error{Kind: KindIndexBuild}
	// ErrQuery is matched by errors.Is for retrieval or generation failures.
	ErrQuery = &Error{Kind: KindQuery}
)

// Error is a classified failure with an optional remediation hint.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same kind, so the package
// sentinels can be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a classified error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithHint attaches remediation text shown to the operator.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or an empty Kind.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// HintOf returns the first remediation hint found in err's chain.
func HintOf(err error) string {
	for err != nil {
		if de, ok := err.(*Error); ok && de.Hint != "" {
			return de.Hint
		}
		err = errors.Unwrap(err)
	}
	return ""
}
