// Package ai wraps the external completion service: one low-level
// OpenAI-compatible client plus the gateways (response, diagnosis,
// resource recommendation) that own prompts, timeouts and fallbacks.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Turn is one entry of a conversation history in completion-API form.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a single chat-completions call.
type CompletionRequest struct {
	System      string
	Turns       []Turn
	Temperature float64
	MaxTokens   int
	JSONObject  bool
}

// Client calls any OpenAI-compatible /v1/chat/completions endpoint.
// Works with the hosted API as well as vLLM, LiteLLM and similar
// self-hosted gateways.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient builds a completion client. baseURL should include the /v1
// prefix; timeout bounds each request end to end.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Complete issues one chat-completions request and returns the first
// choice's text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.model == "" {
		return "", fmt.Errorf("completion model required")
	}
	messages := make([]Turn, 0, len(req.Turns)+1)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, Turn{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Turns...)

	reqBody := oaiChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONObject {
		reqBody.ResponseFormat = &oaiResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return "", fmt.Errorf("completion api error: %s", errResp.Error.Message)
		}
		return "", fmt.Errorf("completion api error: %s", resp.Status)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("completion decode: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from completion api")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from completion api")
	}
	return text, nil
}

// ErrKind classifies gateway failures for the fallback ladder.
type ErrKind string

const (
	ErrKindNone    ErrKind = ""
	ErrKindNetwork ErrKind = "network"
	ErrKindTimeout ErrKind = "timeout"
	ErrKindUnknown ErrKind = "unknown"
)

// ClassifyErr maps a transport error to its kind. Timeouts win over
// network errors because a deadline can surface wrapped in either shape.
func ClassifyErr(err error) ErrKind {
	if err == nil {
		return ErrKindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrKindNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ErrKindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrKindNetwork
	}
	return ErrKindUnknown
}

// OpenAI-compatible request/response types.

type oaiChatRequest struct {
	Model          string             `json:"model"`
	Messages       []Turn             `json:"messages"`
	Temperature    float64            `json:"temperature,omitempty"`
	MaxTokens      int                `json:"max_tokens,omitempty"`
	ResponseFormat *oaiResponseFormat `json:"response_format,omitempty"`
}

type oaiResponseFormat struct {
	Type string `json:"type"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message Turn `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
