// Package cache provee una abstracción de cache con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción)
//
// Usos en este servicio: guard de single-use para el state OAuth y
// memoización de page tokens (facebook).
package cache

import (
	"context"
	"errors"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL opcional. Si ttl es 0, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Add guarda solo si la key no existe (atómico).
	// Retorna true si escribió, false si la key ya estaba.
	Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string
	Password string
	DB       int
	Prefix   string // Prefijo para todas las keys
}

// Errores de cache.
var (
	ErrNotFound      = errors.New("cache: key not found")
	ErrUnknownDriver = errors.New("cache: unknown driver")
)

// New crea un cliente según cfg.Driver.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.Prefix), nil
	case "redis":
		return NewRedis(cfg)
	default:
		return nil, ErrUnknownDriver
	}
}
