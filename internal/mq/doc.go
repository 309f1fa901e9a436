// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Очередь служит хэндовером между API и воркером: API создаёт flow
// в БД и публикует flow.submitted, воркер потребляет и запускает
// пайплайн. Доставка прогресса клиентам идёт НЕ здесь, а через
// Event Bus (internal/bus).
//
// Типы сообщений:
//   - flow.submitted — новый flow ожидает выполнения
//
// Exchanges:
//   - vertex.flows — события flows
//   - vertex.dlq   — dead letter queue
package mq
