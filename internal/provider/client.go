// Package provider wraps the Anthropic SDK behind a small completion
// interface and routes calls through per-service circuit breakers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/conclave-labs/conclave/internal/breaker"
)

// CompletionRequest is a single prompt for a text completion.
type CompletionRequest struct {
	// System is the system prompt, optional.
	System string
	// Prompt is the user message.
	Prompt string
	// MaxTokens caps the response length. Zero uses the client default.
	MaxTokens int64
	// Model optionally overrides the client's configured model, e.g. to
	// use a cheaper model for distillation.
	Model anthropic.Model
}

// Completion is the text result of a completion call plus its token usage.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Completer is the completion surface the deliberation engine depends on.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Client wraps the Anthropic SDK client with token tracking and fault
// tagging for circuit breaker classification.
type Client struct {
	inner   anthropic.Client
	service string
	model   anthropic.Model
	bedrock bool
	tracker *TokenTracker
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// Service is the breaker service name faults are tagged with
	// (e.g. breaker.ServiceLLM).
	Service string
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
}

// DefaultMaxTokens is the response cap used when a request does not set one.
const DefaultMaxTokens = 4096

// NewClient creates a new Anthropic API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	inner := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	service := cfg.Service
	if service == "" {
		service = breaker.ServiceLLM
	}

	return &Client{
		inner:   inner,
		service: service,
		model:   model,
		bedrock: cfg.UseAWSBedrock,
		tracker: NewTokenTracker(),
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock
// inference profile format (us.anthropic.{model}-v1:0, cross-region).
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaudeOpus4_5_20251101:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}

	// Might already be Bedrock format or a custom model.
	return model
}

// Complete makes a single completion call, records token usage, and tags
// transport/API errors with the fault shape breaker classifiers match on.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := req.Model
	if model == "" {
		model = c.model
	} else if c.bedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return nil, c.tagFault(err)
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	return &Completion{
		Text:         b.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// tagFault wraps SDK and transport errors into the tagged fault shape so
// classifiers can categorize them without knowing SDK types. Context
// cancellation passes through untouched so it stays excluded from counting.
func (c *Client) tagFault(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	fault := &breaker.Fault{Service: c.service, Err: err}

	var apierr *anthropic.Error
	switch {
	case errors.As(err, &apierr):
		fault.StatusCode = apierr.StatusCode
	case errors.Is(err, context.DeadlineExceeded):
		fault.Timeout = true
	case errors.Is(err, syscall.ECONNREFUSED):
		fault.ConnectionRefused = true
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			fault.Timeout = true
		}
	}

	return fault
}

// Model returns the configured model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Service returns the breaker service name this client tags faults with.
func (c *Client) Service() string {
	return c.service
}

// Tracker returns the token tracker for this client.
func (c *Client) Tracker() *TokenTracker {
	return c.tracker
}
