package services

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable means the transaction extract could not be opened
	// or read.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedRecord means a row could not be parsed into the expected
	// field shape.
	ErrMalformedRecord = errors.New("malformed record")
)

type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", ErrSourceUnavailable, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSourceUnavailable, e.Path, e.Err)
}

func (e *SourceError) Unwrap() []error { return []error{ErrSourceUnavailable, e.Err} }

// RecordError locates a malformed row. Line is the 1-based line in the
// source file, 0 when the problem is the header.
type RecordError struct {
	Line  int
	Field string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: header: %v", ErrMalformedRecord, e.Err)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: line %d: field %s: %v", ErrMalformedRecord, e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: line %d: %v", ErrMalformedRecord, e.Line, e.Err)
}

func (e *RecordError) Unwrap() []error { return []error{ErrMalformedRecord, e.Err} }
