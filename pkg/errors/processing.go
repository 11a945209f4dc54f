package errors

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ErrorCode represents a classified processing error.
type ErrorCode string

const (
	ErrHeaderInvalid    ErrorCode = "header_invalid"
	ErrRowParse         ErrorCode = "row_parse"
	ErrRangeMerge       ErrorCode = "range_merge"
	ErrEncoding         ErrorCode = "encoding"
	ErrIO               ErrorCode = "io"
	ErrInputNotFound    ErrorCode = "input_not_found"
	ErrContextCancelled ErrorCode = "context_cancelled"
	ErrProcessingError  ErrorCode = "processing_error"
)

// ProcessingError is a structured error for failures while reading or
// classifying an action log. Line is the 1-based line in the source file,
// or zero when the error is not tied to a line.
type ProcessingError struct {
	Code    ErrorCode
	Stage   string
	Line    int
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// NewProcessingError builds a ProcessingError with the message taken from cause.
func NewProcessingError(code ErrorCode, stage string, line int, cause error) *ProcessingError {
	msg := string(code)
	if cause != nil {
		msg = cause.Error()
	}
	return &ProcessingError{
		Code:    code,
		Stage:   stage,
		Line:    line,
		Message: msg,
		Cause:   cause,
	}
}

// ClassifyError inspects an error and returns a *ProcessingError with the appropriate code.
// Errors that already carry a code are returned unchanged.
func ClassifyError(err error, stage string) *ProcessingError {
	if err == nil {
		return nil
	}

	var existing *ProcessingError
	if errors.As(err, &existing) {
		return existing
	}

	pe := &ProcessingError{
		Stage:   stage,
		Message: err.Error(),
		Cause:   err,
	}

	var parseErr *csv.ParseError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		pe.Code = ErrContextCancelled
		pe.Message = "operation cancelled"
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, ErrNotFound):
		pe.Code = ErrInputNotFound
	case errors.As(err, &parseErr):
		pe.Code = ErrRowParse
		pe.Line = parseErr.Line
	case errors.Is(err, ErrValidation):
		pe.Code = ErrHeaderInvalid
	case errors.Is(err, ErrInvalidState):
		pe.Code = ErrRangeMerge
	default:
		lower := strings.ToLower(err.Error())
		switch {
		case strings.Contains(lower, "encoding") || strings.Contains(lower, "invalid utf"):
			pe.Code = ErrEncoding
		case strings.Contains(lower, "read") || strings.Contains(lower, "i/o"):
			pe.Code = ErrIO
		default:
			pe.Code = ErrProcessingError
		}
	}

	return pe
}

// CodeOf returns the code of err, classifying it when needed.
func CodeOf(err error) ErrorCode {
	if pe := ClassifyError(err, ""); pe != nil {
		return pe.Code
	}
	return ""
}

// IsRowScoped reports whether err only affects a single row of the input.
func IsRowScoped(err error) bool {
	switch CodeOf(err) {
	case ErrRowParse, ErrRangeMerge:
		return true
	default:
		return false
	}
}
