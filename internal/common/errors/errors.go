// Package errors provides the chat pipeline error taxonomy and its BPMN mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Input / contract errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// Terminal turn outcomes
	ErrCodeSafetyViolation ErrorCode = "SAFETY_VIOLATION"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"

	// Upstream collaborators
	ErrCodeSearchUnavailable          ErrorCode = "SEARCH_UNAVAILABLE"
	ErrCodeLanguageServiceUnavailable ErrorCode = "LANGUAGE_SERVICE_UNAVAILABLE"
	ErrCodeContextStoreUnavailable    ErrorCode = "CONTEXT_STORE_UNAVAILABLE"
	ErrCodeCatalogLoadFailed          ErrorCode = "CATALOG_LOAD_FAILED"

	// Language service detail
	ErrCodeIntentParsingFailed ErrorCode = "INTENT_PARSING_FAILED"
	ErrCodeLLMTimeout          ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMSynthesisFailed  ErrorCode = "LLM_SYNTHESIS_FAILED"

	// Timeouts
	ErrCodeTurnTimeout ErrorCode = "TURN_TIMEOUT"

	// Workflow engine
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewInvalidInputError rejects a message before it enters the pipeline.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Inbound message rejected", details, false, nil)
}

// NewInvalidArgumentError reports a caller contract violation.
func NewInvalidArgumentError(err error) *StandardError {
	return newError(ErrCodeInvalidArgument, "Invalid argument", errDetails(err), false, err)
}

// NewSafetyViolationError records a blocked message.
func NewSafetyViolationError(riskLevel string, issues []string) *StandardError {
	return newError(ErrCodeSafetyViolation, "Message blocked by safety filter",
		fmt.Sprintf("riskLevel: %s, issues: %s", riskLevel, strings.Join(issues, ",")), false, nil)
}

// NewRateLimitedError records a throttled message.
func NewRateLimitedError(userID string) *StandardError {
	return newError(ErrCodeRateLimited, "Rate limit exceeded", fmt.Sprintf("userId: %s", userID), false, nil)
}

// NewSearchUnavailableError wraps a semantic search failure.
func NewSearchUnavailableError(err error) *StandardError {
	return newError(ErrCodeSearchUnavailable, "Search service unavailable", errDetails(err), true, err)
}

// NewLanguageServiceUnavailableError wraps a language service failure.
func NewLanguageServiceUnavailableError(err error) *StandardError {
	return newError(ErrCodeLanguageServiceUnavailable, "Language service unavailable", errDetails(err), true, err)
}

// NewContextStoreUnavailableError wraps a context store failure.
func NewContextStoreUnavailableError(err error) *StandardError {
	return newError(ErrCodeContextStoreUnavailable, "Context store unavailable", errDetails(err), true, err)
}

// NewCatalogLoadFailedError wraps a catalog snapshot load failure.
func NewCatalogLoadFailedError(source string, err error) *StandardError {
	return newError(ErrCodeCatalogLoadFailed, "Catalog snapshot load failed",
		fmt.Sprintf("source: %s, error: %s", source, errDetails(err)), true, err)
}

// NewIntentParsingFailedError creates a retryable intent parsing error.
func NewIntentParsingFailedError(err error) *StandardError {
	return newError(ErrCodeIntentParsingFailed, "Intent parsing error", errDetails(err), true, err)
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError(timeout time.Duration) *StandardError {
	return newError(ErrCodeLLMTimeout, "Language service timeout",
		fmt.Sprintf("call exceeded %s", timeout), true, nil)
}

// NewLLMSynthesisFailedError creates a retryable LLM synthesis error.
func NewLLMSynthesisFailedError(err error) *StandardError {
	return newError(ErrCodeLLMSynthesisFailed, "Reply generation error", errDetails(err), true, err)
}

// NewTurnTimeoutError records a turn that exceeded its budget.
func NewTurnTimeoutError(timeout time.Duration, stage string) *StandardError {
	return newError(ErrCodeTurnTimeout, "Turn exceeded time budget",
		fmt.Sprintf("timeout: %s, stage: %s", timeout, stage), false, nil)
}

// NewExternalServiceError wraps a failure of an infrastructure dependency.
func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("%s request failed", service), errDetails(err), true, err).
		WithMetadata("service", service)
}

// NewTimeoutError wraps an infrastructure call that ran out of time.
func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("%s request timed out", service), errDetails(err), true, err).
		WithMetadata("service", service)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:               "INVALID_INPUT",
	ErrCodeInvalidArgument:            "INVALID_ARGUMENT",
	ErrCodeSafetyViolation:            "SAFETY_VIOLATION",
	ErrCodeRateLimited:                "RATE_LIMITED",
	ErrCodeSearchUnavailable:          "SEARCH_UNAVAILABLE",
	ErrCodeLanguageServiceUnavailable: "LANGUAGE_SERVICE_UNAVAILABLE",
	ErrCodeContextStoreUnavailable:    "CONTEXT_STORE_UNAVAILABLE",
	ErrCodeCatalogLoadFailed:          "CATALOG_LOAD_FAILED",
	ErrCodeIntentParsingFailed:        "INTENT_PARSING_FAILED",
	ErrCodeLLMTimeout:                 "LLM_TIMEOUT",
	ErrCodeLLMSynthesisFailed:         "LLM_SYNTHESIS_FAILED",
	ErrCodeTurnTimeout:                "TURN_TIMEOUT",
}

// GetRetryCount returns the recommended retry count for a job failing with code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSearchUnavailable,
		ErrCodeLanguageServiceUnavailable,
		ErrCodeContextStoreUnavailable,
		ErrCodeCatalogLoadFailed,
		ErrCodeIntentParsingFailed,
		ErrCodeLLMSynthesisFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeLLMTimeout, ErrCodeTimeout:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// CodeOf returns the code of the first StandardError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidInput, ErrCodeInvalidArgument:
		return "INPUT"
	case ErrCodeSafetyViolation:
		return "SAFETY"
	case ErrCodeRateLimited:
		return "THROTTLE"
	case ErrCodeTurnTimeout, ErrCodeLLMTimeout, ErrCodeTimeout:
		return "TIMEOUT"
	case ErrCodeExternalService:
		return "UPSTREAM"
	}

	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "UNAVAILABLE"),
		strings.Contains(codeStr, "FAILED"):
		return "UPSTREAM"
	default:
		return "OTHER"
	}
}
