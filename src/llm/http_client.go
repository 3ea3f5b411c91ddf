package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to an ollama-style generate endpoint.
type HTTPClient struct {
	baseURL      string
	defaultModel string
	http         *http.Client
}

// NewHTTPClient creates a client for the model endpoint at baseURL.
func NewHTTPClient(baseURL, defaultModel string) *HTTPClient {
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		http:         &http.Client{Timeout: 120 * time.Second},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Chat renders the conversation into a prompt and asks the model for a reply.
func (c *HTTPClient) Chat(ctx context.Context, req Request) (Result, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: buildPrompt(req.Messages),
		Stream: false,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode model request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build model request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("model endpoint returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded generateResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return Result{}, fmt.Errorf("failed to decode model response: %w", err)
	}

	return Result{
		Text:     strings.TrimSpace(decoded.Response),
		Duration: time.Since(start),
	}, nil
}

// buildPrompt flattens the conversation into the plain prompt format the
// generate endpoint expects, ending with an open assistant turn.
func buildPrompt(messages []Message) string {
	var b strings.Builder
	b.WriteString("You are drafting a reply on behalf of the user. " +
		"Given the conversation below, write a short, natural reply to the last message.\n\n")
	for _, m := range messages {
		name := m.Name
		if name == "" {
			if m.Role == "assistant" {
				name = "Me"
			} else {
				name = "Them"
			}
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nMe:")
	return b.String()
}
