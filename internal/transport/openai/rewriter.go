// Package openai rewrites free-form search input into keyword queries using
// an OpenAI-compatible chat completion API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/rewrite"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/metrics"
)

// systemPrompt asks for a bare keyword query.
const systemPrompt = "You rewrite search input for a data catalog of tables, views and reports. " +
	"Fix spelling, expand obvious abbreviations and drop filler words. " +
	"Reply with the keywords only, on one line, without quotes or explanation."

// maxOutputTokens bounds the rewritten query.
const maxOutputTokens = 64

// Rewriter normalizes queries with a chat model.
type Rewriter struct {
	client   *openai.Client
	model    string
	user     string
	provider string
	logger   *zap.Logger
}

// Config holds the rewriter provider settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	User     string
	Provider string
	Logger   *zap.Logger
}

// NewRewriter creates an OpenAI-compatible query rewriter.
func NewRewriter(cfg *Config) *Rewriter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Rewriter{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		user:     cfg.User,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Provider returns the configured provider label.
func (r *Rewriter) Provider() string { return r.provider }

// Model returns the chat model name.
func (r *Rewriter) Model() string { return r.model }

// Complete returns the model's keyword rendition of query with its token usage.
func (r *Rewriter) Complete(ctx context.Context, query string) (rewrite.Result, error) {
	req := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		MaxTokens:   maxOutputTokens,
		Temperature: 0,
		User:        r.user,
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.RewriteRequestsTotal.WithLabelValues(r.provider, r.model, "error").Inc()
		return rewrite.Result{}, parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.RewriteRequestsTotal.WithLabelValues(r.provider, r.model, "error").Inc()
		return rewrite.Result{}, domain.NewTransient("rewrite query", errors.New("empty completion"))
	}

	metrics.RewriteRequestsTotal.WithLabelValues(r.provider, r.model, "success").Inc()
	metrics.RewriteDuration.WithLabelValues(r.provider, r.model).Observe(duration.Seconds())

	metrics.RewriteTokensTotal.WithLabelValues(r.provider, r.model).Add(float64(resp.Usage.TotalTokens))

	out := rewrite.Result{
		Query:        cleanup(resp.Choices[0].Message.Content),
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	r.logger.Debug("Query rewritten",
		zap.String("query", query),
		zap.String("rewritten", out.Query),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (r *Rewriter) HealthCheck(ctx context.Context) error {
	if _, err := r.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// cleanup keeps the first line and strips wrapping quotes.
func cleanup(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.Trim(s, "\"'`"))
}

// parseAPIError extracts a human-readable error from the API response.
// Every provider failure is transient from the caller's point of view.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return domain.NewTransient("rewrite query",
			fmt.Errorf("provider error %d: %s", reqErr.HTTPStatusCode, detail))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewTransient("rewrite query",
			fmt.Errorf("provider error %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
	}

	return domain.NewTransient("rewrite query", err)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
