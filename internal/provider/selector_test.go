package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conclave-labs/conclave/internal/breaker"
)

type fakeCompleter struct {
	name  string
	calls int
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{Text: "answer from " + f.name, InputTokens: 10, OutputTokens: 5}, nil
}

func testRegistry() *breaker.Registry {
	cfg := breaker.DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.TransientFailureThreshold = 1
	cfg.RecoveryTimeout = time.Hour
	cfg.TransientRecoveryTimeout = time.Hour
	return breaker.NewRegistry(cfg)
}

// trip opens the named breaker by feeding it one transient fault.
func trip(t *testing.T, reg *breaker.Registry, service string) {
	t.Helper()
	fault := &breaker.Fault{Service: service, Timeout: true, Err: errors.New("down")}
	_ = reg.Get(service).CallSync(func() error { return fault })
	if reg.Get(service).State() != breaker.StateOpen {
		t.Fatalf("expected %s breaker open", service)
	}
}

func TestSelectorPrefersPrimaryWhenHealthy(t *testing.T) {
	reg := testRegistry()
	primary := &fakeCompleter{name: "primary"}
	fallback := &fakeCompleter{name: "fallback"}
	s := NewLLMSelector(reg, primary, fallback)

	got, err := s.Complete(context.Background(), CompletionRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "answer from primary" {
		t.Errorf("expected primary to serve, got %q", got.Text)
	}
	if fallback.calls != 0 {
		t.Errorf("expected fallback untouched, got %d calls", fallback.calls)
	}
}

func TestSelectorFallsBackWhenPrimaryOpen(t *testing.T) {
	reg := testRegistry()
	primary := &fakeCompleter{name: "primary"}
	fallback := &fakeCompleter{name: "fallback"}
	s := NewLLMSelector(reg, primary, fallback)

	trip(t, reg, breaker.ServiceLLM)

	got, err := s.Complete(context.Background(), CompletionRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "answer from fallback" {
		t.Errorf("expected fallback to serve, got %q", got.Text)
	}
	if primary.calls != 0 {
		t.Errorf("expected primary skipped while open, got %d calls", primary.calls)
	}
}

func TestSelectorBothOpenReturnsToPrimary(t *testing.T) {
	reg := testRegistry()
	primary := &fakeCompleter{name: "primary"}
	fallback := &fakeCompleter{name: "fallback"}
	s := NewLLMSelector(reg, primary, fallback)

	trip(t, reg, breaker.ServiceLLM)
	trip(t, reg, breaker.ServiceLLMFallback)

	picked, service := s.Pick()
	if service != breaker.ServiceLLM || picked != Completer(primary) {
		t.Errorf("expected primary when both circuits open, got %s", service)
	}

	// The primary's breaker still refuses until its recovery timeout.
	_, err := s.Complete(context.Background(), CompletionRequest{Prompt: "q"})
	if !breaker.IsCircuitOpen(err) {
		t.Errorf("expected circuit open refusal, got %v", err)
	}
	if primary.calls != 0 {
		t.Errorf("expected no call through an open breaker, got %d", primary.calls)
	}
}

func TestSelectorWithoutFallback(t *testing.T) {
	reg := testRegistry()
	primary := &fakeCompleter{name: "primary"}
	s := NewLLMSelector(reg, primary, nil)

	trip(t, reg, breaker.ServiceLLM)

	if _, service := s.Pick(); service != breaker.ServiceLLM {
		t.Errorf("expected primary without a fallback, got %s", service)
	}
}

func TestSelectorFailureOpensOnlyServingBreaker(t *testing.T) {
	reg := testRegistry()
	primary := &fakeCompleter{name: "primary", err: &breaker.Fault{Service: breaker.ServiceLLM, Timeout: true, Err: errors.New("slow")}}
	fallback := &fakeCompleter{name: "fallback"}
	s := NewLLMSelector(reg, primary, fallback)

	if _, err := s.Complete(context.Background(), CompletionRequest{Prompt: "q"}); err == nil {
		t.Fatal("expected primary failure to surface")
	}
	if reg.Get(breaker.ServiceLLM).State() != breaker.StateOpen {
		t.Error("expected primary breaker open after its failure")
	}
	if reg.Get(breaker.ServiceLLMFallback).State() != breaker.StateClosed {
		t.Error("expected fallback breaker untouched")
	}

	// Next call routes to the fallback.
	got, err := s.Complete(context.Background(), CompletionRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "answer from fallback" {
		t.Errorf("expected fallback to serve after primary opened, got %q", got.Text)
	}
}
