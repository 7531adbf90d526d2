package cache

import (
	"context"
	"time"
)

// StateGuard adapta un Client al contrato oauthstate.ReplayGuard:
// marca nonces de state como usados para forzar single-use.
type StateGuard struct {
	Client Client
}

// MarkUsed retorna false si el nonce ya fue usado dentro de su TTL.
// Ante un error de backend responde true (fail-open): preferimos aceptar un
// replay acotado a 10 minutos antes que romper todos los callbacks OAuth
// cuando redis está caído.
func (g *StateGuard) MarkUsed(nonce string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := g.Client.Add(ctx, "state-nonce:"+nonce, "1", ttl)
	if err != nil {
		return true
	}
	return ok
}
