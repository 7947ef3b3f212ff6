package models

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrInsufficientHistory signals that a series is too short for seasonal
// decomposition. It never leaves the forecaster; it selects the fallback.
var ErrInsufficientHistory = eris.New("insufficient history for seasonal forecast")

// DataAccessError wraps store-level failures
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access %s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// NewDataAccessError wraps err with the failing operation name
func NewDataAccessError(op string, err error) *DataAccessError {
	return &DataAccessError{Op: op, Err: err}
}

// InvalidValueError reports negative, NaN or infinite numeric input
type InvalidValueError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// ForecastServiceUnavailableError reports an unreachable or misbehaving
// external forecaster
type ForecastServiceUnavailableError struct {
	Err error
}

func (e *ForecastServiceUnavailableError) Error() string {
	return fmt.Sprintf("forecast service unavailable: %v", e.Err)
}

func (e *ForecastServiceUnavailableError) Unwrap() error {
	return e.Err
}
