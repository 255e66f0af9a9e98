package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBodyBytes = 2048

type CompatibleConfig struct {
	BaseURL string
	// APIKey is optional; local gateways often run without one.
	APIKey     string
	HTTPClient *http.Client
}

// CompatibleProvider speaks the /v1/chat/completions wire format over plain
// HTTP, for gateways that mimic the OpenAI API.
type CompatibleProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewCompatibleProvider(cfg CompatibleConfig) (*CompatibleProvider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &CompatibleProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  client,
	}, nil
}

func (p *CompatibleProvider) Name() string {
	return "openai-compatible"
}

func (p *CompatibleProvider) Complete(ctx context.Context, completion Completion) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":       completion.Model,
		"messages":    completion.Messages,
		"max_tokens":  completion.MaxTokens,
		"temperature": completion.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", &ProviderError{
			Provider:   p.Name(),
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
			Err:        fmt.Errorf("chat completion failed body=%s", truncate(string(rawRespBody), maxErrorBodyBytes)),
		}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decode chat completion response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Provider: p.Name(), Err: fmt.Errorf("empty chat completion choices")}
	}
	return parsed.Choices[0].Message.Content, nil
}

// endpoint accepts base URLs with or without the /v1 suffix.
func (p *CompatibleProvider) endpoint() string {
	if strings.HasSuffix(p.baseURL, "/v1") {
		return p.baseURL + "/chat/completions"
	}
	return p.baseURL + "/v1/chat/completions"
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
