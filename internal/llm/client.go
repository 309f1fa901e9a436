package llm

import "context"

// GenerationParams — необязательные параметры запроса генерации.
// Нулевые указатели означают «использовать значения провайдера по умолчанию».
type GenerationParams struct {
	System      string
	Temperature *float32
	MaxTokens   *int
	TopP        *float32
	Stop        []string
}

// Client генерирует текст по промпту. Реализации обязаны уважать
// отмену и дедлайн контекста и возвращать *GenerationError при отказе.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
