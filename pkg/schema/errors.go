package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeExecution        = "EXECUTION_ERROR"
	ErrCodeCycleDetected    = "CYCLE_DETECTED"
	ErrCodeNodeFailed       = "NODE_FAILED"
	ErrCodeCompletion       = "COMPLETION_ERROR"
	ErrCodeBadResponse      = "MALFORMED_RESPONSE"
	ErrCodeUnsupportedTable = "UNSUPPORTED_TABLE"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeStore            = "STORE_ERROR"
)

// LoomError is the structured error type for all engine operations.
type LoomError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *LoomError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LoomError) Unwrap() error {
	return e.Cause
}

// NewError creates a new LoomError.
func NewError(code, message string) *LoomError {
	return &LoomError{Code: code, Message: message}
}

// NewErrorf creates a new LoomError with a formatted message.
func NewErrorf(code, format string, args ...any) *LoomError {
	return &LoomError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *LoomError) WithNode(nodeID string) *LoomError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *LoomError) WithCause(err error) *LoomError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *LoomError) WithDetails(details map[string]any) *LoomError {
	e.Details = details
	return e
}
