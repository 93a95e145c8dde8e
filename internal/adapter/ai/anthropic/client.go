// Package anthropic implements the completion port against the Anthropic
// Messages API. PDF grounding rides along as a base64 document content block.
package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opcdev/opc-evaluator/internal/adapter/observability"
	"github.com/opcdev/opc-evaluator/internal/domain"
)

// Options configures the client. Zero values fall back to sane defaults.
type Options struct {
	APIKey     string
	BaseURL    string
	Version    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryStep  time.Duration
}

// Client calls the Messages API with linear backoff on rate limits.
type Client struct {
	httpClient *http.Client
	opts       Options
}

// NewClient creates a Messages API client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.anthropic.com"
	}
	if opts.Version == "" {
		opts.Version = "2023-06-01"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 180 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryStep <= 0 {
		opts.RetryStep = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
	}
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *blockSource `json:"source,omitempty"`
}

type blockSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// linearBackOff waits step*attempt between retries, stopping after max
// retries. This matches upstream guidance for rate-limited callers better
// than exponential growth: the provider's window resets on a fixed cadence.
type linearBackOff struct {
	step    time.Duration
	max     int
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt > b.max {
		return backoff.Stop
	}
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// Complete sends one completion request. Rate-limit responses (429 and 529)
// are retried with linear backoff; any other API error fails immediately.
func (c *Client) Complete(ctx domain.Context, req domain.CompletionRequest) (string, error) {
	start := time.Now()
	var out string
	operation := func() error {
		text, err := c.doRequest(ctx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	}

	bo := backoff.WithContext(&linearBackOff{step: c.opts.RetryStep, max: c.opts.MaxRetries}, ctx)
	err := backoff.Retry(operation, bo)
	observability.AIRequestDuration.WithLabelValues("complete").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.AIRequestsTotal.WithLabelValues("complete", "error").Inc()
		return "", err
	}
	observability.AIRequestsTotal.WithLabelValues("complete", "success").Inc()
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, req domain.CompletionRequest) (string, error) {
	blocks := make([]contentBlock, 0, 2)
	if len(req.Document) > 0 {
		blocks = append(blocks, contentBlock{
			Type: "document",
			Source: &blockSource{
				Type:      "base64",
				MediaType: "application/pdf",
				Data:      base64.StdEncoding.EncodeToString(req.Document),
			},
		})
	}
	blocks = append(blocks, contentBlock{Type: "text", Text: req.Prompt})

	body, err := json.Marshal(messagesRequest{
		Model:     c.opts.Model,
		MaxTokens: req.MaxTokens,
		Messages:  []message{{Role: "user", Content: blocks}},
	})
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("op=anthropic.marshal: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("op=anthropic.request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.opts.APIKey)
	httpReq.Header.Set("anthropic-version", c.opts.Version)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are worth one more try.
		return "", fmt.Errorf("op=anthropic.do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("op=anthropic.read: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 529:
		slog.Warn("completion API rate limited",
			slog.Int("status", resp.StatusCode),
			slog.String("model", c.opts.Model))
		return "", fmt.Errorf("op=anthropic.status %d: %w", resp.StatusCode, domain.ErrUpstreamRateLimit)
	default:
		var ae apiError
		msg := string(raw)
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
			msg = ae.Error.Message
		}
		return "", backoff.Permanent(fmt.Errorf("op=anthropic.status %d: %s", resp.StatusCode, msg))
	}

	var mr messagesResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return "", backoff.Permanent(fmt.Errorf("op=anthropic.decode: %w", err))
	}
	for _, block := range mr.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", backoff.Permanent(fmt.Errorf("op=anthropic.decode: %w", domain.ErrSchemaInvalid))
}
