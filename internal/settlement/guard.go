package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/policy"
)

const lockScope = "settlement"

type lockStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	LockKey(scope, id string) string
}

// Guard detects re-entrant settlement attempts via a buyer-scoped TTL marker.
// It is a secondary defense; the order-status transition inside the settle
// transaction remains the authoritative duplicate check.
type Guard struct {
	store lockStore
	ttl   time.Duration
}

// NewGuard wires the guard with its marker store and TTL.
func NewGuard(store lockStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lock store required")
	}
	if ttl <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lock ttl must be positive")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Check rejects the settlement when the buyer already has a live marker for a
// different order. Infra failure follows the settlement action policy, which
// fails closed.
func (g *Guard) Check(ctx context.Context, buyerUserID, orderID uuid.UUID) error {
	key := g.store.LockKey(lockScope, buyerUserID.String())
	current, err := g.store.Get(ctx, key)
	if err == goredis.Nil {
		return nil
	}
	if err != nil {
		if d := policy.Decide(policy.ActionSettlement, err); !d.Allow {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settlement lock check unavailable")
		}
		return nil
	}
	if current != "" && current != orderID.String() {
		return pkgerrors.New(pkgerrors.CodeConflict, "buyer settlement in progress").
			WithDetails(map[string]any{"holding_order": current})
	}
	return nil
}

// Mark records the buyer marker after a successful settle. Best effort.
func (g *Guard) Mark(ctx context.Context, buyerUserID, orderID uuid.UUID) error {
	key := g.store.LockKey(lockScope, buyerUserID.String())
	return g.store.Set(ctx, key, orderID.String(), g.ttl)
}

// Clear removes the buyer marker, used by reconciliation tooling.
func (g *Guard) Clear(ctx context.Context, buyerUserID uuid.UUID) error {
	return g.store.Del(ctx, g.store.LockKey(lockScope, buyerUserID.String()))
}
