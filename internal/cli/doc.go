// Package cli реализует инструмент командной строки Vertex.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Vertex API.
// Работает через HTTP и WebSocket, не импортирует внутренние пакеты
// сервера. CLI используется для запуска, просмотра и отмены flows,
// а также наблюдения за выполнением в реальном времени.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Vertex API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080", token)
//	flows, err := client.ListFlows(cli.ListFlowsOpts{})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: vertex flow list --json | jq .
//
// ## Commands
//
// Cobra-команды:
//   - flow: submit, list, show, cancel, watch
//
// Группа создаётся через фабричную функцию NewFlowCmd, принимающую
// clientFn и outputFn — замыкания для ленивого создания Client и
// Output после парсинга PersistentFlags.
package cli
