package goal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is the custody pool's current view of one deposit.
type Position struct {
	Value   decimal.Decimal
	LockEnd time.Time
	Pledged bool
}

// Exists reports whether the custody pool knows the deposit at all.
// A zero value means the position does not exist.
func (p Position) Exists() bool {
	return p.Value.IsPositive()
}

// Locked reports whether the deposit is still before its lock expiry.
func (p Position) Locked(now time.Time) bool {
	return !p.LockEnd.Before(now)
}

// PositionOracle reads deposit state from the external custody pool.
// The ledger never mutates custody state. Calls may block on I/O; the
// engine treats oracle latency as bounded but non-zero.
type PositionOracle interface {
	Position(ctx context.Context, pool PoolRef, owner uuid.UUID, depositID uint64) (Position, error)
}
