package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const defaultModel = "gpt-4o-mini"

// OpenAIConfig — настройки клиента OpenAI.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// OpenAIConfigFromEnv читает настройки из окружения
// (OPENAI_API_KEY, OPENAI_MODEL).
func OpenAIConfigFromEnv() OpenAIConfig {
	return OpenAIConfig{
		APIKey: os.Getenv("OPENAI_API_KEY"),
		Model:  os.Getenv("OPENAI_MODEL"),
	}
}

// OpenAIClient — реализация Client поверх OpenAI-совместимого API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIClient создает клиент. API-ключ обязателен.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
		logger.Warn("OPENAI_MODEL not set, using default", "model", model)
	}
	return &OpenAIClient{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
		logger: logger,
	}, nil
}

// Generate выполняет один запрос chat completion и возвращает текст
// первого ответа. Любой отказ нормализуется в *GenerationError.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.System != "" {
		req.Messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: params.System},
		}, req.Messages...)
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		genErr := classify(err)
		c.logger.Error("llm request failed", "model", c.model, "reason", genErr.Reason, "error", err)
		return "", genErr
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.logger.Warn("llm returned empty response", "model", c.model)
		return "", &GenerationError{Reason: ReasonMalformed}
	}
	return resp.Choices[0].Message.Content, nil
}

// classify сводит ошибку провайдера к фиксированной причине.
func classify(err error) *GenerationError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &GenerationError{Reason: ReasonTimeout, Err: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusPaymentRequired:
			return &GenerationError{Reason: ReasonQuota, Err: err}
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return &GenerationError{Reason: ReasonTimeout, Err: err}
		}
	}
	return &GenerationError{Reason: ReasonMalformed, Err: err}
}
