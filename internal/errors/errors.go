// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrForbidden          = errors.New("not owned by user")
	ErrNotFound           = errors.New("not found")
	ErrDataUnavailable    = errors.New("no market data available for the requested date")
	ErrRunNotCompleted    = errors.New("backtest run has not completed")
	ErrRunTerminal        = errors.New("backtest run already in a terminal state")
	ErrMarketClosed       = errors.New("market is closed")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrFeedNotRunning     = errors.New("live feed is not running")
	ErrFeedRunning        = errors.New("live feed is already running")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDatabaseError      = errors.New("database error")
)

// BrokerError represents an error from the broker API.
type BrokerError struct {
	Code    string
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%s]: %s", e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(code, message string, err error) *BrokerError {
	return &BrokerError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// RunError represents an error tied to a specific backtest run.
type RunError struct {
	RunID  int64
	Stage  string
	Reason string
	Err    error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backtest error [run %d] %s: %s: %v", e.RunID, e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("backtest error [run %d] %s: %s", e.RunID, e.Stage, e.Reason)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError creates a new RunError.
func NewRunError(runID int64, stage, reason string, err error) *RunError {
	return &RunError{
		RunID:  runID,
		Stage:  stage,
		Reason: reason,
		Err:    err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
