// Package bus — Event Bus: pub/sub с именованными каналами
// для доставки событий пайплайна подписанным клиентам.
//
// Реализации:
//   - memory.go — внутрипроцессная (тесты, single-process режим)
//   - redis.go  — Redis pub/sub (API и воркер как отдельные процессы)
//
// Имена каналов задаются в internal/domain: flow:<id>, agent:<id>,
// notifications:<user_id>.
package bus
