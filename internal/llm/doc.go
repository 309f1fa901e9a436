// Package llm содержит клиент генерации текста для стадий конвейера.
//
// Клиент скрывает конкретного провайдера за интерфейсом Client; рабочая
// реализация ходит в OpenAI-совместимый API. Ошибки генерации
// нормализуются в GenerationError с коротким машиночитаемым reason,
// который конвейер записывает в поле error потока.
package llm
