package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// MalformedInput indicates a question or snapshot the engine cannot parse
	MalformedInput ErrorCode = "MALFORMED_INPUT"
	// StorageUnavailable indicates the knowledge base cannot be opened
	StorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	// SnapshotInvalid indicates a snapshot document failed validation
	SnapshotInvalid ErrorCode = "SNAPSHOT_INVALID"
	// SnapshotMissing indicates no snapshot has been loaded yet
	SnapshotMissing ErrorCode = "SNAPSHOT_MISSING"
	// ScopeInvalid indicates an unknown project scope was requested
	ScopeInvalid ErrorCode = "SCOPE_INVALID"
	// SynthesisFailed indicates the optional LLM synthesis step errored
	SynthesisFailed ErrorCode = "SYNTHESIS_FAILED"
	// Unauthorized indicates a missing or invalid API token
	Unauthorized ErrorCode = "UNAUTHORIZED"
	// Timeout indicates a query exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// EkbError represents an engine error with a stable code and suggestions
type EkbError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        any         `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new EkbError
func New(code ErrorCode, message string, cause error) *EkbError {
	return &EkbError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *EkbError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EkbError) Unwrap() error {
	return e.cause
}

// CodeOf extracts the error code from an error chain, or INTERNAL_ERROR
// for plain errors.
func CodeOf(err error) ErrorCode {
	var ee *EkbError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return InternalError
}

// FromError returns the typed error in the chain, wrapping plain errors
// as INTERNAL_ERROR.
func FromError(err error) *EkbError {
	var ee *EkbError
	if errors.As(err, &ee) {
		return ee
	}
	return New(InternalError, "unexpected error", err)
}

// WithDetails adds details to the error
func (e *EkbError) WithDetails(details any) *EkbError {
	e.Details = details
	return e
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	SnapshotMissing: {
		{
			Type:        RunCommand,
			Command:     "ekb load --snapshot <graph.json>",
			Safe:        true,
			Description: "Load a knowledge graph snapshot before querying",
		},
	},
	StorageUnavailable: {
		{
			Type:        RunCommand,
			Command:     "ekb load --snapshot <graph.json> --db .ekb/kb.db",
			Safe:        true,
			Description: "Rebuild the SQLite knowledge base from a snapshot",
		},
	},
	ScopeInvalid: {
		{
			Type:        RunCommand,
			Command:     "ekb projects",
			Safe:        true,
			Description: "List the project identifiers known to the registry",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
