package extractor

import (
	"errors"
	"fmt"
)

// ErrorKind buckets extraction failures for callers that map them to
// responses or job states.
type ErrorKind string

const (
	KindMissingDependency ErrorKind = "MissingDependencyError"
	KindPdfValidation     ErrorKind = "PdfValidationError"
	KindPdfProcessing     ErrorKind = "PdfProcessingError"
	KindMaxPagesExceeded  ErrorKind = "MaxPagesExceededError"
	KindEmptyContent      ErrorKind = "EmptyContentError"
	// KindQualityGate is reserved for strict-mode hard failure; the gate
	// result is advisory today.
	KindQualityGate ErrorKind = "QualityGateError"
)

// ExtractionError is the common error type for the extraction pipeline.
type ExtractionError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Describe renders the error the way job records store it:
// "{class}: {message}".
func (e *ExtractionError) Describe() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newError(kind ErrorKind, format string, args ...any) *ExtractionError {
	return &ExtractionError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error, format string, args ...any) *ExtractionError {
	return &ExtractionError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the error's kind, or KindPdfProcessing for anything that
// is not an ExtractionError.
func KindOf(err error) ErrorKind {
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Kind
	}
	return KindPdfProcessing
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var extErr *ExtractionError
	return errors.As(err, &extErr) && extErr.Kind == kind
}
