package breaker

import (
	"errors"
	"fmt"
	"time"
)

// CircuitOpenError is returned when a call is refused because the circuit
// is OPEN. It is always distinguishable from the wrapped call's own errors
// so callers can treat "service known-down" differently from "call failed".
type CircuitOpenError struct {
	// Service is the name of the guarded service.
	Service string
	// RetryAfter is how long until the breaker will probe again.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for service %s (retry in %s)", e.Service, e.RetryAfter.Round(time.Millisecond))
}

// IsCircuitOpen reports whether err is (or wraps) a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var openErr *CircuitOpenError
	return errors.As(err, &openErr)
}
