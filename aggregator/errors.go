package aggregator

import (
	"errors"
	"fmt"
)

// AggregationError represents an unexpected failure inside the normalization
// pipeline. Most sub-steps degrade to defaults instead of failing, so this
// surfaces only for genuinely malformed input or internal bugs.
type AggregationError struct {
	Err error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *AggregationError) Unwrap() error {
	return e.Err
}

// NewAggregationError creates a new AggregationError
func NewAggregationError(err error) *AggregationError {
	return &AggregationError{Err: err}
}

// IsAggregationError checks if the error is or wraps an AggregationError
func IsAggregationError(err error) bool {
	var aggErr *AggregationError
	return err != nil && errors.As(err, &aggErr)
}
