package types

import (
	"errors"
	"fmt"
)

// ErrDegenerateGeometry marks a polygon with fewer than 3 points or a zero-area bounding box
var ErrDegenerateGeometry = errors.New("degenerate polygon geometry")

// DecodeError is a malformed upload. It only affects the one image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// AnalysisServiceError is a failed call to the AI measurement service.
// StatusCode is zero for network failures and timeouts.
type AnalysisServiceError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *AnalysisServiceError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("analysis service returned status %d: %s", e.StatusCode, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("analysis service unavailable: %v", e.Err)
	default:
		return "analysis service error: " + e.Detail
	}
}

func (e *AnalysisServiceError) Unwrap() error {
	return e.Err
}

// Retryable is always true; analysis failures are recovered by user retry
func (e *AnalysisServiceError) Retryable() bool {
	return true
}

// SubmissionError is a failed assessment submission. Detail carries the server response.
type SubmissionError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("assessment submission failed with status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("assessment submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
