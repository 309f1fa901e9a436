package pipeline

import "errors"

// Ошибки пайплайна.
var (
	// ErrUnknownFlowType — для типа flow не определён список стадий.
	ErrUnknownFlowType = errors.New("unknown flow type")

	// ErrUnknownStage — стадия не найдена в реестре.
	ErrUnknownStage = errors.New("unknown stage")
)
