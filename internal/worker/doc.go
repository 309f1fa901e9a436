// Package worker запускает выполнение flows.
//
// Включает:
//   - worker.go — получение flows (consumer + polling fallback) и диспетчеризация
//   - janitor.go — периодическая уборка зависших running flows
//
// Worker — stateless компонент системы, который:
//   - Получает события flow.submitted из очереди RabbitMQ (event-driven)
//   - Периодически проверяет pending flows в БД (polling fallback)
//   - Держит учёт активных flows, чтобы не выполнить один flow дважды
//   - Ограничивает параллелизм семафором
//   - Передаёт flow в pipeline.Chain, которая ведёт его до терминального статуса
//
// Workers масштабируются горизонтально — несколько экземпляров могут
// потреблять из одной очереди; двойная доставка безопасна, потому что
// переход pending → running защищён guarded transition в хранилище.
package worker
