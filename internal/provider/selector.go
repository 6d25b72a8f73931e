package provider

import (
	"context"

	"github.com/conclave-labs/conclave/internal/breaker"
)

// Selector routes completion calls to a primary or fallback provider based
// on circuit breaker state: primary unless its breaker is OPEN, then
// fallback unless its breaker is also OPEN, then primary anyway (the
// breaker itself decides whether to admit a recovery probe or refuse).
// HALF_OPEN providers are always usable.
type Selector struct {
	registry *breaker.Registry

	primary         Completer
	primaryService  string
	fallback        Completer
	fallbackService string
}

// NewSelector creates a selector over the primary provider and an optional
// fallback. Each provider is guarded by its named breaker from the registry.
func NewSelector(registry *breaker.Registry, primary Completer, primaryService string, fallback Completer, fallbackService string) *Selector {
	return &Selector{
		registry:        registry,
		primary:         primary,
		primaryService:  primaryService,
		fallback:        fallback,
		fallbackService: fallbackService,
	}
}

// NewLLMSelector creates a selector using the well-known llm and
// llm_fallback service names.
func NewLLMSelector(registry *breaker.Registry, primary, fallback Completer) *Selector {
	return NewSelector(registry, primary, breaker.ServiceLLM, fallback, breaker.ServiceLLMFallback)
}

// Pick returns the provider and breaker service to use for the next call.
func (s *Selector) Pick() (Completer, string) {
	if s.registry.Get(s.primaryService).State() != breaker.StateOpen {
		return s.primary, s.primaryService
	}
	if s.fallback != nil && s.registry.Get(s.fallbackService).State() != breaker.StateOpen {
		return s.fallback, s.fallbackService
	}
	// Both circuits open: prefer the primary and let its breaker either
	// admit a probe or refuse with a retry hint.
	return s.primary, s.primaryService
}

// Complete picks a provider and invokes it through its circuit breaker.
func (s *Selector) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	completer, service := s.Pick()

	var result *Completion
	err := s.registry.Get(service).Call(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = completer.Complete(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
