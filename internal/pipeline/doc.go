// Package pipeline выполняет агентные пайплайны.
//
// Включает:
//   - stages.go — описания стадий (персоны агентов и построение промптов)
//   - executor.go — выполнение одной стадии через llm.Client
//   - chain.go — последовательное выполнение цепочки стадий одного flow
//
// Пайплайн получает flow в статусе pending, переводит его в running,
// выполняет стадии строго по порядку (результат каждой стадии передаётся
// следующей как контекст) и финализирует flow (completed/failed).
// Отмена кооперативная: между стадиями цепочка перечитывает flow из
// хранилища и прекращает работу, если его уже отменили.
package pipeline
