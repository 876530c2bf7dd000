package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the capture pipeline
 *
 * Capture and recognition failures abort one cycle; enrichment failures
 * drop one span. None of them is fatal to the process.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Stage errors
	ErrorCaptureFailed     ErrorCode = "CAPTURE_FAILED"
	ErrorRecognitionFailed ErrorCode = "RECOGNITION_FAILED"
	ErrorEnrichmentFailed  ErrorCode = "ENRICHMENT_FAILED"

	// Validation errors
	ErrorInvalidRegion ErrorCode = "INVALID_REGION"
)

// Sentinels usable with errors.Is. A PipelineError matches the sentinel of
// its code.
var (
	ErrCapture       = stderrors.New("capture failed")
	ErrRecognition   = stderrors.New("recognition failed")
	ErrEnrichment    = stderrors.New("enrichment failed")
	ErrInvalidRegion = stderrors.New("invalid region")
)

// PipelineError represents a structured stage error
type PipelineError struct {
	Code      ErrorCode
	Message   string
	CycleID   uint64
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's code.
func (e *PipelineError) Is(target error) bool {
	switch target {
	case ErrCapture:
		return e.Code == ErrorCaptureFailed
	case ErrRecognition:
		return e.Code == ErrorRecognitionFailed
	case ErrEnrichment:
		return e.Code == ErrorEnrichmentFailed
	case ErrInvalidRegion:
		return e.Code == ErrorInvalidRegion
	}
	return false
}

// Timeout reports whether the error was produced by a stage deadline.
func (e *PipelineError) Timeout() bool {
	_, ok := e.Details["timeout"]
	return ok
}

// Factory functions for common errors

func NewCaptureError(cycleID uint64, region string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorCaptureFailed,
		Message:   fmt.Sprintf("Capture failed for region %s", region),
		CycleID:   cycleID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"region": region,
		},
		Cause: cause,
	}
}

func NewRecognitionError(cycleID uint64, engine string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorRecognitionFailed,
		Message:   fmt.Sprintf("Recognition failed on engine: %s", engine),
		CycleID:   cycleID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_engine": engine,
		},
		Cause: cause,
	}
}

func NewEnrichmentError(cycleID uint64, spanIndex int, text string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorEnrichmentFailed,
		Message:   fmt.Sprintf("Enrichment failed for span %d", spanIndex),
		CycleID:   cycleID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"span_index": spanIndex,
			"span_text":  text,
		},
		Cause: cause,
	}
}

// NewStageTimeoutError wraps a deadline as the error kind of the stage that
// exceeded it, so timeouts follow the same recovery policy as failures.
func NewStageTimeoutError(cycleID uint64, code ErrorCode, stage string, duration time.Duration, cause error) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   fmt.Sprintf("%s timed out after %v", stage, duration),
		CycleID:   cycleID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"stage":   stage,
			"timeout": duration.String(),
		},
		Cause: cause,
	}
}

func NewInvalidRegionError(width, height int) *PipelineError {
	return &PipelineError{
		Code:      ErrorInvalidRegion,
		Message:   fmt.Sprintf("Region size must be positive, got %dx%d", width, height),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"width":  width,
			"height": height,
		},
	}
}

// ToMap converts error to map for history storage and event payloads
func (e *PipelineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"cycle_id":   e.CycleID,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// CodeOf returns the code of the first PipelineError in err's chain.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
