// Package keygen генерирует уникальные ключи для запросов.
package keygen

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDelay — искусственная задержка перед генерацией ключа.
// Имитирует реальную работу.
const DefaultDelay = time.Second

// Generator выдаёт случайные UUID (version 4).
//
// Коллизии 122 случайных бит на практике не встречаются,
// никакой координации между процессами нет.
type Generator struct {
	delay time.Duration
	sleep func(time.Duration)
	newID func() uuid.UUID
}

// New создаёт Generator с указанной задержкой.
// delay <= 0 отключает задержку.
func New(delay time.Duration) *Generator {
	return &Generator{
		delay: delay,
		sleep: time.Sleep,
		newID: uuid.New,
	}
}

// Generate ждёт задержку и возвращает новый ключ в каноническом
// текстовом виде (36 символов). Всегда успешен.
func (g *Generator) Generate() string {
	if g.delay > 0 {
		g.sleep(g.delay)
	}
	return g.newID().String()
}
