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

// ollamaPerCallTimeout is higher than a typical remote-API timeout to account
// for local model cold-start (the model must load from disk on first use)
// and slower CPU inference, mirroring the teacher's OllamaValidator.
const ollamaPerCallTimeout = 90 * time.Second

// OllamaClient calls a local Ollama server's chat API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient constructs an OllamaClient. baseURL defaults to the
// standard local Ollama address when empty.
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			// HTTP timeout must exceed ollamaPerCallTimeout so the transport
			// doesn't close the connection before the context deadline fires.
			Timeout: ollamaPerCallTimeout + 5*time.Second,
		},
	}
}

// Warmup loads the model into Ollama's memory ahead of the first real call,
// keeping it resident so the first /verify request doesn't pay cold-start
// latency against the round budget (mirrors OllamaValidator.Warmup).
func (c *OllamaClient) Warmup(ctx context.Context, model string) error {
	warmCtx, cancel := context.WithTimeout(ctx, ollamaPerCallTimeout)
	defer cancel()

	body, _ := json.Marshal(ollamaChatRequest{
		Model:     model,
		Messages:  []ollamaChatMessage{{Role: "user", Content: "hi"}},
		Stream:    false,
		KeepAlive: "72h",
	})
	req, err := http.NewRequestWithContext(warmCtx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama warmup: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama warmup: request: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama warmup: status %d", resp.StatusCode)
	}
	return nil
}

type ollamaChatRequest struct {
	Model     string              `json:"model"`
	Messages  []ollamaChatMessage `json:"messages"`
	Stream    bool                `json:"stream"`
	KeepAlive string              `json:"keep_alive,omitempty"`
	Options   *ollamaOptions      `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Complete implements Client.
func (c *OllamaClient) Complete(ctx context.Context, model string, messages []Message, maxTokens int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, ollamaPerCallTimeout)
	defer cancel()

	msgs := make([]ollamaChatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = ollamaChatMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:     model,
		Messages:  msgs,
		Stream:    false,
		KeepAlive: "72h",
		Options:   &ollamaOptions{NumPredict: maxTokens},
	})
	if err != nil {
		return "", newError(ClassMalformed, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", newError(ClassTransport, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", newError(ClassTimeout, "call exceeded deadline", err)
		}
		return "", newError(ClassTransport, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", newError(ClassRateLimited, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 500 {
		return "", newError(ClassProvider5xx, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", newError(ClassMalformed, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", newError(ClassMalformed, "decode response", err)
	}
	return result.Message.Content, nil
}
