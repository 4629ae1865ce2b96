// Package supervisor управляет соединением с RabbitMQ и циклом потребления.
//
// # Состояния
//
//	connecting ──declare──▶ declaring ──consume──▶ consuming
//	    ▲                       │                      │
//	    │                 connection_lost        connection_lost
//	 reconnect                  ▼                      ▼
//	    └──────────────────  retrying  ◀───────────────┘
//
//	любое состояние ──interrupt──▶ shutting_down   (Run возвращает nil)
//	любое состояние ──fail───────▶ fatal           (Run возвращает ошибку)
//
// Переходы линейные, в процессе работает ровно один цикл. Машина состояний
// построена на github.com/looplab/fsm.
//
// # Retry
//
// Повторяются только connection-level ошибки (mq.ErrConnection): недоступный
// брокер, отказ аутентификации, разрыв соединения. Между попытками —
// фиксированная пауза. После MaxAttempts подряд неудачных попыток Run
// возвращает ErrRetriesExhausted. Счётчик сбрасывается, когда consumer
// успешно подписался на очередь.
//
// Любая другая ошибка фатальна для всего процесса: Run закрывает соединение
// и возвращает ErrFatal.
//
// # Shutdown
//
// Отмена ctx (SIGINT/SIGTERM) закрывает соединение. Сообщение, которое
// обрабатывается в этот момент, остаётся без ack, и брокер доставит его
// другому consumer'у.
package supervisor
