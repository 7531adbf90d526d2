package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/crosspost/internal/observability/logger"
)

// BatchResult summarizes a batch refresh pass.
type BatchResult struct {
	Scanned   int `json:"scanned"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

// RefreshExpiringTokens refreshes every active connection whose token expires
// within the given window. Intended for a periodic job so user-facing calls
// rarely pay refresh latency. Per-connection failures deactivate that
// connection and are counted, not propagated.
func (m *Manager) RefreshExpiringTokens(ctx context.Context, within time.Duration) (*BatchResult, error) {
	conns, err := m.repo.ListExpiring(ctx, within)
	if err != nil {
		return nil, fmt.Errorf("credentials: list expiring: %w", err)
	}

	res := &BatchResult{Scanned: len(conns)}
	for _, conn := range conns {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if _, err := m.refresh(ctx, conn.UserID, conn.Platform, within); err != nil {
			res.Failed++
			continue
		}
		res.Refreshed++
	}

	logger.L().Info("batch refresh complete",
		logger.Count(res.Scanned),
		logger.Int("refreshed", res.Refreshed),
		logger.Int("failed", res.Failed),
	)
	return res, nil
}
