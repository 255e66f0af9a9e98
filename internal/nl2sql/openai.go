package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the SDK default endpoint when set.
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAIProvider calls the chat completions API through the official SDK.
// SDK retries are disabled; the Translator owns the retry policy.
type OpenAIProvider struct {
	client openai.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, completion Completion) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(completion.Messages))
	for _, message := range completion.Messages {
		switch message.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(message.Content))
		default:
			messages = append(messages, openai.UserMessage(message.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       completion.Model,
		Messages:    messages,
		Temperature: openai.Float(completion.Temperature),
	}
	if completion.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(completion.MaxTokens))
	}

	res, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &ProviderError{
				Provider:   p.Name(),
				StatusCode: apiErr.StatusCode,
				Retryable:  retryableStatus(apiErr.StatusCode),
				Err:        err,
			}
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if res == nil || len(res.Choices) == 0 {
		return "", &ProviderError{Provider: p.Name(), Err: fmt.Errorf("empty chat completion choices")}
	}
	return res.Choices[0].Message.Content, nil
}
