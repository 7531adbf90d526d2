package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init construye el logger global a partir de la config. Idempotente: solo
// la primera llamada tiene efecto, así que debe ejecutarse antes de levantar
// el server o cualquier subcomando del cli.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L devuelve el logger global. Sin Init previo cae a un logger de
// desarrollo en nivel info, suficiente para tests y comandos one-shot.
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Named etiqueta el componente de origen: Named("orchestrator"),
// Named("refresh-loop").
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With fija campos persistentes, p.ej. With(Platform("reddit")) dentro de
// un adapter.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync vacía los buffers pendientes; va con defer en main.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
