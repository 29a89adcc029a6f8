// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/fiscal-engine/internal/httputil"
)

const (
	// DefaultBaseURL is the Moonshot (Kimi) OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.moonshot.cn/v1"

	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "kimi-k2-turbo-preview"

	// DefaultTemperature keeps extraction close to deterministic.
	DefaultTemperature = 0.1
)

// ErrRateLimited reports a request still rejected with HTTP 429 after the
// rate-limit retries. callWithRetry does not retry it again.
var ErrRateLimited = errors.New("rate limit exceeded")

// ChatBackend calls an OpenAI-compatible chat completions API in JSON mode.
type ChatBackend struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxRetries  int
	Client      *http.Client
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Extract sends msgs and returns the content of the first choice.
// HTTP 429 responses are retried by httputil.DoWithRetry.
func (c *ChatBackend) Extract(ctx context.Context, msgs []Message) (string, error) {
	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	temperature := c.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       msgs,
		Temperature:    temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(base, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, c.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("calling chat API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("chat API returned %d: %w", resp.StatusCode, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
