// Package fillerr defines the error kinds shared by the fill pipeline.
package fillerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Kinds double as sentinels, so
// errors.Is(err, fillerr.FontEmbedFailed) works on wrapped errors.
type Kind struct {
	Code int
	Name string
}

func (k *Kind) Error() string {
	return fmt.Sprintf("%s (%d)", k.Name, k.Code)
}

// Input errors
var (
	InputNotFound   = &Kind{1001, "input not found"}
	InvalidDocument = &Kind{1002, "invalid document"}
)

// Matching and layout errors
var (
	KeywordNotLocated   = &Kind{2001, "keyword not located"}
	PageIndexOutOfRange = &Kind{2002, "page index out of range"}
	LayoutBuildFailed   = &Kind{2003, "layout build failed"}
)

// Output errors
var (
	DocumentMergeFailed = &Kind{3001, "document merge failed"}
	WriteFailed         = &Kind{3002, "write failed"}
	FontEmbedFailed     = &Kind{3003, "font embed failed"}
)

// Configuration errors
var (
	ConfigInvalid = &Kind{4001, "config invalid"}
)

// Error is a failure of one operation with its kind and cause
type Error struct {
	Kind *Kind
	Op   string
	Err  error
}

// New creates an error of the given kind
func New(kind *Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates an error of the given kind with a formatted cause
func Errorf(kind *Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.Name
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error's kind
func (e *Error) Is(target error) bool {
	k, ok := target.(*Kind)
	return ok && k == e.Kind
}

// Code returns the numeric code of the error's kind
func (e *Error) Code() int {
	return e.Kind.Code
}

// Is reports whether any error in err's chain has the given kind
func Is(err error, kind *Kind) bool {
	return errors.Is(err, kind)
}

// KindOf returns the kind of the first *Error in err's chain, or nil
func KindOf(err error) *Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// Retryable reports whether the failure is worth retrying
func Retryable(err error) bool {
	return Is(err, LayoutBuildFailed) || Is(err, WriteFailed)
}
