package goal

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ScoreSink is the external scoring/XP system notified about ledger
// milestones. Both calls are best-effort: the engine records the outcome for
// observability and never lets a sink failure affect the ledger operation.
type ScoreSink interface {
	// ValueAttached reports that a deposit worth amount was attached for owner.
	ValueAttached(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) error
	// GoalCompleted reports that creator's goal reached its target.
	GoalCompleted(ctx context.Context, creator uuid.UUID, goalID uuid.UUID, totalValue decimal.Decimal) error
}

// NotificationOutcome records whether a best-effort notification went out.
// It is surfaced to logging only, never to the caller's result.
type NotificationOutcome struct {
	Sent   bool
	Reason string
}

// outcomeOf converts a sink error into an outcome.
func outcomeOf(err error) NotificationOutcome {
	if err != nil {
		return NotificationOutcome{Reason: err.Error()}
	}
	return NotificationOutcome{Sent: true}
}

// logOutcome writes the notification outcome at the appropriate level.
func logOutcome(logger *zap.Logger, kind string, outcome NotificationOutcome, fields ...zap.Field) {
	if outcome.Sent {
		logger.Debug("score sink notified", append(fields, zap.String("notification", kind))...)
		return
	}
	logger.Warn("score sink notification failed",
		append(fields, zap.String("notification", kind), zap.String("reason", outcome.Reason))...)
}
