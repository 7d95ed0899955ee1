package reconcile

import (
	"context"
	"time"

	"github.com/interbox/payments-backend/pkg/logger"
	"github.com/interbox/payments-backend/pkg/redis"
)

const (
	guardScope = "completion"
	guardTTL   = 10 * time.Minute
)

// Guard is a best-effort duplicate filter in front of the completion path.
// It only spares gateway-retry storms a database round-trip; the conditional
// order update remains the authoritative dedup.
type Guard struct {
	store redis.IdempotencyStore
	logg  *logger.Logger
}

// NewGuard wires the completion guard. A nil store disables it.
func NewGuard(store redis.IdempotencyStore, logg *logger.Logger) *Guard {
	return &Guard{store: store, logg: logg}
}

// Acquire tries to claim the completion slot for a correlation id. Guard
// outages fail open: a false negative here just costs one conditional update.
func (g *Guard) Acquire(ctx context.Context, correlationID string) bool {
	if g == nil || g.store == nil {
		return true
	}
	key := g.store.IdempotencyKey(guardScope, correlationID)
	ok, err := g.store.SetNX(ctx, key, "1", guardTTL)
	if err != nil {
		if g.logg != nil {
			g.logg.Warn(ctx, "completion guard unavailable, proceeding without it")
		}
		return true
	}
	return ok
}

// Release frees the slot so a gateway retry can reprocess after a failure.
func (g *Guard) Release(ctx context.Context, correlationID string) {
	if g == nil || g.store == nil {
		return
	}
	key := g.store.IdempotencyKey(guardScope, correlationID)
	if err := g.store.Del(ctx, key); err != nil && g.logg != nil {
		g.logg.Warn(ctx, "releasing completion guard failed")
	}
}
