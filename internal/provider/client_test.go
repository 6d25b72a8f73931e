package provider

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/conclave-labs/conclave/internal/breaker"
)

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock(anthropic.ModelClaudeSonnet4_20250514)
	if got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("unexpected translation: %s", got)
	}

	// Unknown models pass through untouched.
	custom := anthropic.Model("us.anthropic.custom-model-v1:0")
	if got := translateModelForBedrock(custom); got != custom {
		t.Errorf("expected passthrough, got %s", got)
	}
}

func TestTagFaultTimeout(t *testing.T) {
	c := &Client{service: breaker.ServiceLLM}

	tagged := c.tagFault(context.DeadlineExceeded)
	var fault *breaker.Fault
	if !errors.As(tagged, &fault) {
		t.Fatalf("expected tagged fault, got %v", tagged)
	}
	if !fault.Timeout || fault.Service != breaker.ServiceLLM {
		t.Errorf("expected timeout fault for llm, got %+v", fault)
	}
}

func TestTagFaultConnectionRefused(t *testing.T) {
	c := &Client{service: breaker.ServiceLLM}

	tagged := c.tagFault(syscall.ECONNREFUSED)
	var fault *breaker.Fault
	if !errors.As(tagged, &fault) {
		t.Fatalf("expected tagged fault, got %v", tagged)
	}
	if !fault.ConnectionRefused {
		t.Errorf("expected connection-refused fault, got %+v", fault)
	}
}

func TestTagFaultCanceledPassesThrough(t *testing.T) {
	c := &Client{service: breaker.ServiceLLM}

	tagged := c.tagFault(context.Canceled)
	if !errors.Is(tagged, context.Canceled) {
		t.Fatalf("expected canceled passthrough, got %v", tagged)
	}
	var fault *breaker.Fault
	if errors.As(tagged, &fault) {
		t.Error("cancellation must not be tagged as a fault")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("expected error without an API key")
	}
}

func TestNewClientDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	c, err := NewClient(ClientConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("unexpected default model: %s", c.Model())
	}
	if c.Service() != breaker.ServiceLLM {
		t.Errorf("unexpected default service: %s", c.Service())
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(1000, 500)
	tr.Add(2000, 1000)

	in, out := tr.Total()
	if in != 3000 || out != 1500 {
		t.Errorf("expected 3000/1500 tokens, got %d/%d", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", tr.Calls())
	}
	if cost := tr.Cost(); cost <= 0 {
		t.Errorf("expected positive cost estimate, got %f", cost)
	}

	tr.Reset()
	if in, out := tr.Total(); in != 0 || out != 0 {
		t.Errorf("expected reset counters, got %d/%d", in, out)
	}
}
