// Package worker превращает запрос на генерацию ключа в ответ.
//
// # Обзор
//
// Worker — обработчик сообщений очереди key-requests. На каждое сообщение:
//
//  1. Разбирает тело (JSON-объект с необязательным requestId)
//  2. Генерирует ключ через keygen.Generator
//  3. Собирает GeneratedKey{requestId, key, generatedAt}
//  4. Публикует ответ в generated-keys (persistent, application/json)
//  5. Записывает ключ в журнал, если он подключён
//  6. Возвращает nil — consumer подтверждает (ack) исходное сообщение
//
// Любая ошибка на шагах 1–4 возвращается consumer'у, и тот делает nack
// с requeue. Ack никогда не происходит раньше успешной публикации.
//
// # Dead-letter
//
// Если задан DeadLetterQueue, сообщение, которое нельзя разобрать,
// публикуется туда без изменений и подтверждается. Без dead-letter такое
// сообщение возвращается в очередь бесконечно.
//
// # Журнал
//
// Journal — необязательный аудит выданных ключей (см. repo.KeyRepo).
// Ошибки журнала только логируются и не влияют на ack.
//
//	w := worker.New(worker.Config{
//	    Generator: keygen.New(time.Second),
//	    Topology:  cfg.Topology,
//	    Logger:    logger,
//	})
//
//	handler := w.Handler(mq.NewPublisher(ch, logger))
package worker
