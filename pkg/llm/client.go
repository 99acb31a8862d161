// Package llm is a minimal client for OpenAI-compatible chat completion
// APIs. Turn replies are requested with a strict JSON schema so the model
// output can be parsed mechanically.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for upstream failure classes. The turn worker treats them
// differently: bad credentials pause the project, rate limits retry.
var (
	ErrUnauthorized = errors.New("llm: invalid api key")
	ErrRateLimited  = errors.New("llm: rate limited")
	ErrBadRequest   = errors.New("llm: request rejected")
)

// Message is one chat turn in the upstream wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion call. APIKey travels with the request because
// each project binds its own token.
type Request struct {
	Model          string
	Messages       []Message
	Temperature    float64
	MaxTokens      int
	ResponseFormat *ResponseFormat
}

// ResponseFormat is the OpenAI response_format object.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *JSONSchemaSpec `json:"json_schema,omitempty"`
}

// JSONSchemaSpec names a strict output schema.
type JSONSchemaSpec struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// Usage reports upstream token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the assistant message from the first choice.
type Response struct {
	Content string
	Usage   *Usage
}

// AgentReplyFormat is the strict schema for turn replies. The model must
// name the recipient by id and may attach private reasoning.
func AgentReplyFormat() *ResponseFormat {
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchemaSpec{
			Name:   "agent_reply",
			Strict: true,
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"recipient_id": {"type": "integer"},
					"body": {"type": "string"},
					"thinking": {"type": "string"}
				},
				"required": ["recipient_id", "body"],
				"additionalProperties": false
			}`),
		},
	}
}

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	baseURL  string
	chatPath string
	client   *http.Client
}

// NewClient trims the base URL and configures the request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		chatPath: "/chat/completions",
		client:   &http.Client{Timeout: timeout},
	}
}

type wireRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat performs one completion call and returns the first choice.
func (c *Client) Chat(ctx context.Context, apiKey string, req Request) (*Response, error) {
	body, err := json.Marshal(wireRequest{
		Model:          req.Model,
		Messages:       req.Messages,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if wire.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadRequest, wire.Error.Message)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", ErrBadRequest)
	}

	return &Response{
		Content: wire.Choices[0].Message.Content,
		Usage:   wire.Usage,
	}, nil
}

func classifyStatus(status int, body []byte) error {
	detail := upstreamDetail(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrUnauthorized, status, detail)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", ErrRateLimited, status, detail)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status %d: %s", ErrBadRequest, status, detail)
	default:
		return fmt.Errorf("llm: upstream status %d: %s", status, detail)
	}
}

// upstreamDetail extracts the error message from an error body, falling back
// to a truncated raw body.
func upstreamDetail(body []byte) string {
	var wire struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error.Message != "" {
		return wire.Error.Message
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
