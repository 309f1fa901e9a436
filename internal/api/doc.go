// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go      — Handler с DI (репозиторий, publisher, шина, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — middleware (logging, recovery)
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — Data Transfer Objects (request/response)
//   - flow_handler.go — обработчики для /flows
//
// API предоставляет REST endpoints для запуска, чтения и отмены flows.
package api
