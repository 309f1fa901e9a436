// Package gateway содержит WebSocket-шлюз для live-обновлений.
//
// Структура:
//   - gateway.go  — upgrade, цикл входящих кадров, привязка соединения к каналу
//   - hub.go      — по одной подписке Event Bus на канал
//   - auth.go     — аутентификация до upgrade
//   - protocol.go — формат кадров клиент ↔ сервер
//   - registry.go — учёт соединений и Broadcast по каналу
//
// Шлюз держит одну подписку Event Bus на канал и рассылает события
// всем соединениям канала через Registry.Broadcast. Доставка
// best-effort: клиент, подключившийся после события, его не увидит
// (снимок текущего статуса flow отправляется при подключении).
// Клиент может слать ping-кадры, шлюз отвечает pong.
package gateway
