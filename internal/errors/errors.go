// Package errors defines the error taxonomy of the converter: structural
// format errors, configuration errors, per-file processing errors and
// escalated warnings. Tolerance policies in the pipeline decide which of
// these abort the invocation.
package errors

import (
	"errors"
	"fmt"
)

// Error codes attached to the typed errors below.
const (
	CodeFormatError   = "FORMAT_ERROR"
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeProcessing    = "PROCESSING_ERROR"
	CodeWarning       = "WARNING"
)

// FormatError is a structural violation of the input grammar: unknown sensor
// tag, column/unit/field count mismatch, or a header/data ordering violation.
// It carries the source location so diagnostics can point at the exact line.
type FormatError struct {
	File    string // truncated display path
	Line    int    // 1-based, 0 when the error applies to the whole file
	Sensor  string // sensor tag, empty when not applicable
	Message string
}

// Error renders the location-prefixed message, e.g.
// "23-12-16/22-00-00/SENSOR.CSV:17: unknown sensor tag 'FOO'".
func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Code returns the machine-readable error code.
func (e *FormatError) Code() string { return CodeFormatError }

// NewFormatError builds a FormatError for a location.
func NewFormatError(file string, line int, sensor, message string) *FormatError {
	return &FormatError{File: file, Line: line, Sensor: sensor, Message: message}
}

// ConfigurationError reports an invalid or self-contradictory configuration.
// It is always fatal at startup, before any file is touched.
type ConfigurationError struct {
	Option  string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("invalid configuration %q: %s", e.Option, e.Message)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}

// Code returns the machine-readable error code.
func (e *ConfigurationError) Code() string { return CodeConfiguration }

// NewConfigurationError builds a ConfigurationError for an option.
func NewConfigurationError(option, message string) *ConfigurationError {
	return &ConfigurationError{Option: option, Message: message}
}

// ProcessingError wraps an error that aborted processing of one file or one
// merged artifact. IsFormat distinguishes structural errors (subject to the
// format-error tolerance flags) from I/O and other failures (subject to
// continue_on_error).
type ProcessingError struct {
	Location string // file path or artifact description
	IsFormat bool
	Err      error
}

func (e *ProcessingError) Error() string {
	if e.IsFormat {
		return fmt.Sprintf("format error in %s: %v", e.Location, e.Err)
	}
	return fmt.Sprintf("error processing %s: %v", e.Location, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ProcessingError) Unwrap() error { return e.Err }

// Code returns the machine-readable error code.
func (e *ProcessingError) Code() string { return CodeProcessing }

// NewProcessingError wraps err with the location it occurred at.
func NewProcessingError(location string, isFormat bool, err error) *ProcessingError {
	return &ProcessingError{Location: location, IsFormat: isFormat, Err: err}
}

// WarningError is a warning escalated to an error by stop_on_warning.
type WarningError struct {
	Message string
}

func (e *WarningError) Error() string { return "warning treated as error: " + e.Message }

// Code returns the machine-readable error code.
func (e *WarningError) Code() string { return CodeWarning }

// NewWarningError escalates a warning message.
func NewWarningError(message string) *WarningError {
	return &WarningError{Message: message}
}

// IsFormatError reports whether err is, or wraps, a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	if errors.As(err, &fe) {
		return true
	}
	var pe *ProcessingError
	return errors.As(err, &pe) && pe.IsFormat
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
