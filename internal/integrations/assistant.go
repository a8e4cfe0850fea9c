package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AssistantClient asks a remote assistant service for a reply to a
// free-form prompt. The call is bounded by the configured timeout; a
// timeout surfaces to the user as a "try again" reply, never silence.
type AssistantClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type assistantRequest struct {
	Prompt string `json:"prompt"`
}

type assistantResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

func NewAssistantClient(baseURL, apiKey string, timeout time.Duration) *AssistantClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &AssistantClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *AssistantClient) Ask(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(assistantRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encode assistant request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build assistant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assistant service returned %s", resp.Status)
	}

	var decoded assistantResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode assistant response: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("assistant error: %s", decoded.Error)
	}
	if strings.TrimSpace(decoded.Reply) == "" {
		return "", fmt.Errorf("assistant returned an empty reply")
	}

	return strings.TrimSpace(decoded.Reply), nil
}
