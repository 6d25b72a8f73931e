// Package breaker provides per-service circuit breakers for outbound
// provider calls (LLM completion, embeddings, search, datastore, cache).
package breaker

import "fmt"

// FaultType categorizes a classified failure.
type FaultType string

const (
	// FaultTransient is a retry-worthy failure (timeout, connection reset,
	// server error) expected to recover on its own.
	FaultTransient FaultType = "transient"
	// FaultPermanent is a deterministic failure (bad request, auth) that
	// will not recover by retrying.
	FaultPermanent FaultType = "permanent"
	// FaultModelSpecific is a provider capacity failure (rate limit,
	// overloaded model).
	FaultModelSpecific FaultType = "model_specific"
	// FaultUnknown is anything the classifier could not place. Treated as
	// transient so the circuit eventually reacts rather than never.
	FaultUnknown FaultType = "unknown"
)

// Fault is the minimal tagged error shape classifiers pattern-match.
// Provider clients wrap their library-specific errors into a Fault at the
// call boundary so adding a client library only needs a new adapter, not
// new isinstance-style chains against concrete exception types.
type Fault struct {
	// Service is the external service name the call targeted.
	Service string
	// StatusCode is the HTTP-ish status code, 0 when not applicable.
	StatusCode int
	// Timeout indicates the call timed out.
	Timeout bool
	// ConnectionRefused indicates the service was unreachable.
	ConnectionRefused bool
	// Err is the underlying error from the client library.
	Err error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	switch {
	case f.Timeout:
		return fmt.Sprintf("%s: call timed out: %v", f.Service, f.Err)
	case f.ConnectionRefused:
		return fmt.Sprintf("%s: connection refused: %v", f.Service, f.Err)
	case f.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %v", f.Service, f.StatusCode, f.Err)
	default:
		return fmt.Sprintf("%s: %v", f.Service, f.Err)
	}
}

// Unwrap returns the underlying error.
func (f *Fault) Unwrap() error {
	return f.Err
}
