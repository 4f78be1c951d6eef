package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// perCallTimeout bounds a single remote completion call, enforced inside the
// client itself so a caller's wider context budget can't mask a hung call.
const perCallTimeout = 30 * time.Second

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIClient constructs an OpenAIClient.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: perCallTimeout + 5*time.Second,
		},
	}
}

type openAIChatRequest struct {
	Model     string              `json:"model"`
	Messages  []openAIChatMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, model string, messages []Message, maxTokens int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	msgs := make([]openAIChatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openAIChatMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(openAIChatRequest{Model: model, Messages: msgs, MaxTokens: maxTokens})
	if err != nil {
		return "", newError(ClassMalformed, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", newError(ClassTransport, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", newError(ClassTimeout, "call exceeded deadline", err)
		}
		return "", newError(ClassTransport, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", newError(ClassRateLimited, "rate limited by provider", nil)
	}
	if resp.StatusCode >= 500 {
		return "", newError(ClassProvider5xx, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		var errBody openAIErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&errBody)
		return "", newError(ClassMalformed, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", newError(ClassMalformed, "decode response", err)
	}
	if len(result.Choices) == 0 {
		return "", newError(ClassMalformed, "no choices in response", nil)
	}
	return result.Choices[0].Message.Content, nil
}
