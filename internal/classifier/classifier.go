// Package classifier calls the LLM provider to classify call transcripts
// into the tiered tag taxonomy.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adstia/call-tagging/internal/model"
	"github.com/adstia/call-tagging/internal/resilience"
	"github.com/adstia/call-tagging/pkg/openrouter"
)

// Config controls classifier behavior.
type Config struct {
	// Model is the provider model identifier. Empty uses the client default.
	Model string

	// Temperature for the completion. Classification wants low variance.
	Temperature float64

	// MaxTokens caps the completion length.
	MaxTokens int

	// UseSchema requests strict json_schema output. When the model rejects
	// the schema, the call falls back to json_object mode once.
	UseSchema bool

	// Concurrency bounds in-flight provider calls per group.
	Concurrency int

	// Retry controls per-call retry behavior. Every failed request is
	// retried, whether the provider errored or returned an unparseable
	// completion; only an open circuit short-circuits the attempts.
	Retry resilience.RetryConfig
}

// DefaultConfig returns the production classifier settings.
func DefaultConfig() Config {
	return Config{
		Temperature: 0.1,
		MaxTokens:   4096,
		UseSchema:   true,
		Concurrency: 5,
		Retry:       resilience.DefaultRetryConfig(),
	}
}

// Result is the classification outcome for one call. Exactly one of Output
// and Err is set.
type Result struct {
	Call    model.Call
	Output  *model.ClassifierOutput
	Elapsed time.Duration
	Err     error
}

// Classifier turns call transcripts into validated tier outputs.
type Classifier struct {
	client  openrouter.Client
	cfg     Config
	breaker *resilience.Breaker
}

// New creates a classifier on top of the provider client.
func New(client openrouter.Client, cfg Config) *Classifier {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &Classifier{
		client: client,
		cfg:    cfg,
		breaker: resilience.NewBreaker(resilience.CircuitConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("provider circuit state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// ProviderDown reports whether the circuit breaker currently considers the
// provider unavailable. The pipeline checks this between passes to stop a
// run early instead of burning attempts on every remaining call.
func (c *Classifier) ProviderDown() bool {
	return c.breaker.State() == resilience.CircuitOpen
}

// Classify analyzes a single call under the given campaign system prompt.
func (c *Classifier) Classify(ctx context.Context, call model.Call, systemPrompt string) (*model.ClassifierOutput, time.Duration, error) {
	start := time.Now()

	payload, err := json.Marshal(call.ToPayload())
	if err != nil {
		return nil, 0, eris.Wrap(err, "classifier: marshal call payload")
	}
	userPrompt := "Analyze this call:\n\n" + string(payload)

	retry := c.cfg.Retry
	retry.ShouldRetry = shouldRetry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("openrouter", "chat_completion")
	}

	out, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.ClassifierOutput, error) {
		return c.classifyOnce(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		return nil, time.Since(start), err
	}

	if out.CallerID == "" {
		out.CallerID = call.CallerID
	}
	return out, time.Since(start), nil
}

// classifyOnce performs one provider round trip, including the one-shot
// json_object fallback when the model rejects json_schema mode.
func (c *Classifier) classifyOnce(ctx context.Context, systemPrompt, userPrompt string) (*model.ClassifierOutput, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	format := &openrouter.ResponseFormat{Type: "json_object"}
	if c.cfg.UseSchema {
		format = &openrouter.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &openrouter.JSONSchema{
				Name:   schemaName,
				Strict: true,
				Schema: json.RawMessage(ResponseSchema),
			},
		}
	}

	resp, err := c.request(ctx, systemPrompt, userPrompt, format)
	if err != nil && c.cfg.UseSchema && isSchemaRejection(err) {
		zap.L().Warn("model rejected json_schema, falling back to json_object")
		resp, err = c.request(ctx, systemPrompt, userPrompt, &openrouter.ResponseFormat{Type: "json_object"})
	}

	c.breaker.Record(err, err != nil && resilience.IsTransient(err))
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, eris.New("classifier: provider returned no choices")
	}
	return parseOutput([]byte(resp.Choices[0].Message.Content))
}

func (c *Classifier) request(ctx context.Context, systemPrompt, userPrompt string, format *openrouter.ResponseFormat) (*openrouter.ChatCompletionResponse, error) {
	temp := c.cfg.Temperature
	maxTokens := c.cfg.MaxTokens
	req := openrouter.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openrouter.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    &temp,
		ResponseFormat: format,
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	resp, err := c.client.ChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openrouter.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, err
	}
	return resp, nil
}

// Group is a set of calls sharing one campaign system prompt, classified
// together so provider-side prompt caching stays effective.
type Group struct {
	Prompt string
	Calls  []model.Call
}

// ClassifyGroup classifies every call in the group concurrently. Failures
// are isolated per call: one bad transcript never cancels its neighbors,
// and the returned slice always has one Result per input call.
func (c *Classifier) ClassifyGroup(ctx context.Context, group Group) []Result {
	results := make([]Result, len(group.Calls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, call := range group.Calls {
		g.Go(func() error {
			out, elapsed, err := c.Classify(ctx, call, group.Prompt)
			results[i] = Result{Call: call, Output: out, Elapsed: elapsed, Err: err}
			if err != nil {
				zap.L().Error("classification failed",
					zap.Int64("call_id", call.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// shouldRetry retries any request-level failure, malformed or truncated
// completions included. Only circuit-open rejections stop the loop; an open
// breaker is handled at the pass level.
func shouldRetry(err error) bool {
	return !errors.Is(err, resilience.ErrCircuitOpen)
}

// isSchemaRejection matches the provider's 400 response for models that do
// not support json_schema response formats.
func isSchemaRejection(err error) bool {
	var apiErr *openrouter.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusBadRequest && strings.Contains(apiErr.Body, "json_schema")
}
