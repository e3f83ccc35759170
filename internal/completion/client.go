// Package completion is the live AI completion collaborator: an
// OpenAI-compatible chat-completions HTTP client used by the AI node
// executors in live mode.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/loomworks/loom/pkg/schema"
)

const (
	defaultEndpointPath = "/v1/chat/completions"
	defaultTimeout      = 60 * time.Second
	maxResponseBody     = 4 * 1024 * 1024
)

// Config holds the completion client configuration.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	EndpointPath string        // defaults to /v1/chat/completions
	Timeout      time.Duration // HTTP client timeout, defaults to 60s
	Temperature  float64
}

// Client is an OpenAI-compatible chat-completions client. A circuit breaker
// guards the endpoint: once the provider fails repeatedly, calls fail fast
// instead of hanging every run on a dead upstream.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewClient creates a completion client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = defaultEndpointPath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "completion",
		MaxRequests: 1, // one probe in half-open state
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("completion circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
	}
}

// Complete sends a prompt with optional system instructions and returns the
// raw response text.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.breaker.Execute(func() (string, error) {
		return c.chat(ctx, system, prompt, false)
	})
}

// CompleteJSON sends a prompt requesting strict-JSON output and returns the
// parsed object. The response is tolerant of markdown fences and surrounding
// prose: the first balanced object region is extracted before parsing.
func (c *Client) CompleteJSON(ctx context.Context, system, prompt string) (map[string]any, error) {
	text, err := c.breaker.Execute(func() (string, error) {
		return c.chat(ctx, system, prompt, true)
	})
	if err != nil {
		return nil, err
	}

	obj, ok := ExtractJSONObject(text)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeBadResponse, "no JSON object found in completion response").
			WithDetails(map[string]any{"response": truncate(text, 500)})
	}
	return obj, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) chat(ctx context.Context, system, prompt string, strictJSON bool) (string, error) {
	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
	}
	if system != "" {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "system", Content: system})
	}
	reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "user", Content: prompt})
	if strictJSON {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeCompletion, "marshal completion request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.EndpointPath, bytes.NewReader(payload))
	if err != nil {
		return "", schema.NewError(schema.ErrCodeCompletion, "build completion request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeCompletion, "completion request failed").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", schema.NewError(schema.ErrCodeCompletion, "read completion response").WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", schema.NewErrorf(schema.ErrCodeCompletion,
			"completion endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", schema.NewError(schema.ErrCodeCompletion, "decode completion response").WithCause(err)
	}
	if parsed.Error != nil {
		return "", schema.NewErrorf(schema.ErrCodeCompletion, "completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", schema.NewError(schema.ErrCodeCompletion, "completion response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("... (%d bytes)", len(s))
}
