// Package cli реализует инструмент командной строки keygen.
//
// # Обзор
//
// CLI — клиентская утилита оператора. Работает напрямую с RabbitMQ
// (и журналом ключей в Postgres, если он есть), параметры подключения
// берёт из тех же переменных окружения, что и worker.
//
// # Ключевые компоненты
//
// ## Broker
//
// Короткоживущее соединение с RabbitMQ: объявляет очереди, публикует
// запросы и забирает ответы через basic.get.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, служебные сообщения (Info) — в stderr.
// Это позволяет использовать pipe: keygen responses --json | jq .
//
// ## Commands
//
//   - request   — опубликовать N запросов на генерацию ключа
//   - responses — забрать сгенерированные ключи из очереди ответов
//   - journal   — показать ключи из журнала по requestId или найти один ключ
//
// Каждая команда создаётся фабричной функцией, принимающей
// замыкания для ленивого создания зависимостей после парсинга флагов.
package cli
