// Package errors provides structured error handling for quickscope operations.
// It defines error codes, error types, and provides utilities for creating
// and handling errors with context and structured information.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// Input errors.
	CodePortSpec  ErrorCode = "PORT_SPEC"
	CodeNoTargets ErrorCode = "NO_TARGETS"

	// Network and scanning errors.
	CodeResolution ErrorCode = "RESOLUTION"
	CodeScanFailed ErrorCode = "SCAN_FAILED"
)

// ScanError represents an error that occurred during scanning operations.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	Operation string
	Cause     error
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		msg = fmt.Sprintf("%s (target: %s)", msg, e.Target)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// PortSpecError reports a malformed port specification token.
type PortSpecError struct {
	Spec   string
	Token  string
	Reason string
}

// Error implements the error interface.
func (e *PortSpecError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("[%s] invalid port token %q in %q: %s", CodePortSpec, e.Token, e.Spec, e.Reason)
	}
	return fmt.Sprintf("[%s] invalid port specification %q: %s", CodePortSpec, e.Spec, e.Reason)
}

// NewPortSpecError creates a port specification error.
func NewPortSpecError(spec, token, reason string) *PortSpecError {
	return &PortSpecError{Spec: spec, Token: token, Reason: reason}
}

// ResolutionError reports a target entry that could not be turned into addresses.
type ResolutionError struct {
	Input string
	Cause error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] could not resolve %q", CodeResolution, e.Input)
	}
	return fmt.Sprintf("[%s] could not resolve %q: %v", CodeResolution, e.Input, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// NewResolutionError creates a resolution error for one target entry.
func NewResolutionError(input string, cause error) *ResolutionError {
	return &ResolutionError{Input: input, Cause: cause}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field: %s)", msg, e.Field)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Utility functions for common error operations

// GetCode extracts the error code from an error chain if it has one.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Code
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Code
	}
	var portErr *PortSpecError
	if errors.As(err, &portErr) {
		return CodePortSpec
	}
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return CodeResolution
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsFatal reports whether an error aborts a scan before probing starts.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeConfiguration, CodeValidation, CodePortSpec, CodeNoTargets:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrNoTargets creates an error for a scan with nothing to probe.
func ErrNoTargets() *ConfigError {
	return NewConfigError(CodeNoTargets, "no resolvable targets")
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "required configuration field missing", field, nil)
}
