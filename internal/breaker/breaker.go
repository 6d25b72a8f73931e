package breaker

import (
	"context"
	"log"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	// StateClosed means calls flow normally.
	StateClosed State = "closed"
	// StateOpen means calls are refused without invoking the wrapped function.
	StateOpen State = "open"
	// StateHalfOpen means the breaker is probing whether the service recovered.
	StateHalfOpen State = "half_open"
)

// Config tunes one circuit breaker instance. Each external service gets an
// independently tuned instance from the registry.
type Config struct {
	// FailureThreshold is the consecutive counted failures that open the
	// circuit for unknown and model-specific faults.
	FailureThreshold int `mapstructure:"failure_threshold" json:"failure_threshold"`
	// RecoveryTimeout is the OPEN duration before a probe for unknown and
	// model-specific faults.
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout" json:"recovery_timeout"`
	// SuccessThreshold is the HALF_OPEN successes needed to close.
	SuccessThreshold int `mapstructure:"success_threshold" json:"success_threshold"`
	// TransientFailureThreshold opens the circuit for transient faults.
	// Zero falls back to FailureThreshold.
	TransientFailureThreshold int `mapstructure:"transient_failure_threshold" json:"transient_failure_threshold"`
	// PermanentFailureThreshold only gates a warning log; permanent faults
	// never open the circuit.
	PermanentFailureThreshold int `mapstructure:"permanent_failure_threshold" json:"permanent_failure_threshold"`
	// TransientRecoveryTimeout is the OPEN duration when the last fault was
	// transient. Zero falls back to RecoveryTimeout.
	TransientRecoveryTimeout time.Duration `mapstructure:"transient_recovery_timeout" json:"transient_recovery_timeout"`
	// PermanentRecoveryTimeout is the OPEN duration when the last fault was
	// permanent. Zero falls back to RecoveryTimeout.
	PermanentRecoveryTimeout time.Duration `mapstructure:"permanent_recovery_timeout" json:"permanent_recovery_timeout"`
}

// DefaultConfig returns conservative breaker defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:          5,
		RecoveryTimeout:           30 * time.Second,
		SuccessThreshold:          2,
		TransientFailureThreshold: 5,
		PermanentFailureThreshold: 20,
		TransientRecoveryTimeout:  15 * time.Second,
		PermanentRecoveryTimeout:  2 * time.Minute,
	}
}

// Counts is a snapshot of a breaker's failure accounting.
type Counts struct {
	// Failures is the shared consecutive-failure counter that moves the
	// circuit toward OPEN.
	Failures int
	// Successes is the HALF_OPEN success counter.
	Successes int
	// TransientFailures counts transient (and unknown) faults seen.
	TransientFailures int
	// PermanentFailures counts permanent faults seen. These never open
	// the circuit.
	PermanentFailures int
}

// CircuitBreaker guards calls to one external service. It is long-lived
// across many schedules and safe for concurrent use; counter updates and
// state transitions are atomic under the breaker's own lock, and no lock
// spans multiple breakers.
type CircuitBreaker struct {
	name       string
	cfg        Config
	classifier Classifier

	mu                sync.Mutex
	state             State
	failureCount      int
	successCount      int
	transientFailures int
	permanentFailures int
	lastFaultType     FaultType
	lastFailure       time.Time
	lastStateChange   time.Time

	// now is a clock hook for tests.
	now func() time.Time
}

// New creates a circuit breaker for the named service. A nil classifier
// falls back to DefaultClassifier.
func New(name string, cfg Config, classifier Classifier) *CircuitBreaker {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	now := time.Now
	return &CircuitBreaker{
		name:            name,
		cfg:             cfg,
		classifier:      classifier,
		state:           StateClosed,
		lastStateChange: now(),
		now:             now,
	}
}

// Call invokes fn through the breaker. If the circuit is OPEN and the
// fault-type-specific recovery timeout has not elapsed, it returns a
// *CircuitOpenError without invoking fn. Otherwise fn runs outside the
// breaker's lock and its outcome updates the breaker state.
func (b *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	b.afterCall(err)
	return err
}

// CallSync is the synchronous counterpart of Call with identical semantics.
func (b *CircuitBreaker) CallSync(fn func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := fn()
	b.afterCall(err)
	return err
}

// beforeCall admits or refuses the call. In OPEN it checks whether the
// recovery timeout for the last recorded fault type has elapsed; if so the
// breaker moves to HALF_OPEN and the call proceeds as a probe.
func (b *CircuitBreaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	timeout := b.recoveryTimeoutFor(b.lastFaultType)
	elapsed := b.now().Sub(b.lastFailure)
	if elapsed < timeout {
		return &CircuitOpenError{Service: b.name, RetryAfter: timeout - elapsed}
	}

	b.transitionLocked(StateHalfOpen)
	b.successCount = 0
	return nil
}

func (b *CircuitBreaker) afterCall(err error) {
	if err == nil {
		b.onSuccess()
		return
	}
	b.onFailure(err)
}

// onSuccess closes the circuit after enough HALF_OPEN probes succeed, and
// forgives prior consecutive failures while CLOSED.
func (b *CircuitBreaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
			b.resetCountersLocked()
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// onFailure classifies the error and updates counters. Excluded errors do
// not count at all. Permanent faults track their own counter but never move
// the circuit toward OPEN from CLOSED; any counted failure in HALF_OPEN
// reopens the circuit immediately.
func (b *CircuitBreaker) onFailure(err error) {
	faultType, counts := b.classifier.Classify(err)
	if !counts {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFaultType = faultType
	b.lastFailure = b.now()

	switch faultType {
	case FaultPermanent:
		b.permanentFailures++
		if b.cfg.PermanentFailureThreshold > 0 && b.permanentFailures == b.cfg.PermanentFailureThreshold {
			log.Printf("[breaker] %s: %d permanent failures recorded, check request construction", b.name, b.permanentFailures)
		}
	case FaultTransient, FaultUnknown:
		b.transientFailures++
		b.failureCount++
	default:
		b.failureCount++
	}

	if b.state == StateHalfOpen {
		// The probe failed; the service is still down.
		b.transitionLocked(StateOpen)
		return
	}

	if b.state == StateClosed && faultType != FaultPermanent {
		if b.failureCount >= b.failureThresholdFor(faultType) {
			b.transitionLocked(StateOpen)
		}
	}
}

// failureThresholdFor returns the category-specific open threshold.
// Unknown faults use the transient threshold (treated as transient).
func (b *CircuitBreaker) failureThresholdFor(faultType FaultType) int {
	if (faultType == FaultTransient || faultType == FaultUnknown) && b.cfg.TransientFailureThreshold > 0 {
		return b.cfg.TransientFailureThreshold
	}
	return b.cfg.FailureThreshold
}

// recoveryTimeoutFor returns the OPEN duration for the given fault type.
func (b *CircuitBreaker) recoveryTimeoutFor(faultType FaultType) time.Duration {
	switch faultType {
	case FaultTransient, FaultUnknown:
		if b.cfg.TransientRecoveryTimeout > 0 {
			return b.cfg.TransientRecoveryTimeout
		}
	case FaultPermanent:
		if b.cfg.PermanentRecoveryTimeout > 0 {
			return b.cfg.PermanentRecoveryTimeout
		}
	}
	return b.cfg.RecoveryTimeout
}

// transitionLocked changes state and stamps the change time.
// Caller must hold b.mu.
func (b *CircuitBreaker) transitionLocked(state State) {
	if b.state == state {
		return
	}
	log.Printf("[breaker] %s: %s -> %s", b.name, b.state, state)
	b.state = state
	b.lastStateChange = b.now()
}

// resetCountersLocked clears all counters. Caller must hold b.mu.
func (b *CircuitBreaker) resetCountersLocked() {
	b.failureCount = 0
	b.successCount = 0
	b.transientFailures = 0
	b.permanentFailures = 0
}

// Name returns the guarded service name.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns a snapshot of the breaker's counters.
func (b *CircuitBreaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{
		Failures:          b.failureCount,
		Successes:         b.successCount,
		TransientFailures: b.transientFailures,
		PermanentFailures: b.permanentFailures,
	}
}

// LastFaultType returns the fault type of the last counted failure.
func (b *CircuitBreaker) LastFaultType() FaultType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFaultType
}

// TimeSinceStateChange returns how long the breaker has been in its
// current state.
func (b *CircuitBreaker) TimeSinceStateChange() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Sub(b.lastStateChange)
}

// Reset forces the breaker back to CLOSED and clears all counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateClosed)
	b.resetCountersLocked()
}
