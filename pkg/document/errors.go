// Package document holds what the certification documents share: the
// parse/validation error taxonomy, the strict JSON decode path guarded by a
// JSON Schema shape gate, and canonical digests.
package document

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error kinds a document load can produce.
type Kind string

const (
	// KindParse covers malformed JSON and shape mismatches (unknown fields,
	// wrong types, out-of-vocabulary enum values).
	KindParse Kind = "parse"
	// KindValidation covers well-formed documents that violate an invariant.
	KindValidation Kind = "validation"
)

// Deterministic error codes.
const (
	ErrCodeParse      = "ERR_DOC_PARSE"
	ErrCodeSchema     = "ERR_DOC_SCHEMA"
	ErrCodeValidation = "ERR_DOC_VALIDATION"
)

// Error is the single error type returned by every document loader.
type Error struct {
	Kind     Kind   `json:"kind"`
	Document string `json:"document"`
	Code     string `json:"code"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindParse:
		return fmt.Sprintf("failed to parse %s JSON: %s", e.Document, e.Reason)
	case KindValidation:
		return fmt.Sprintf("%s validation failed: %s", e.Document, e.Reason)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a validation error for the named document.
func Validationf(doc, format string, args ...any) *Error {
	return &Error{
		Kind:     KindValidation,
		Document: doc,
		Code:     ErrCodeValidation,
		Reason:   fmt.Sprintf(format, args...),
	}
}

func parseError(doc, code string, err error) *Error {
	return &Error{
		Kind:     KindParse,
		Document: doc,
		Code:     code,
		Reason:   err.Error(),
		Err:      err,
	}
}

// IsParse reports whether err is (or wraps) a parse error.
func IsParse(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindParse
}

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindValidation
}
