package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	goaldomain "github.com/goalledger/backend/internal/domain/goal"
	"github.com/goalledger/backend/internal/domain/shared"
)

// LedgerMetrics tracks goal and attachment activity. It subscribes to the
// domain event bus so the application services stay free of metrics code.
type LedgerMetrics struct {
	logger *zap.Logger

	goalsCreatedTotal   *Counter
	goalsCancelledTotal *Counter
	goalsCompletedTotal *Counter
	attachedTotal       *Counter
	attachedValueTotal  *Counter
	detachedTotal       *Counter
	transferredTotal    *Counter
	pledgedTotal        *Counter
}

// NewLedgerMetrics creates the ledger metric instruments on the given meter.
func NewLedgerMetrics(meter metric.Meter, logger *zap.Logger) (*LedgerMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lm := &LedgerMetrics{logger: logger}

	var err error
	lm.goalsCreatedTotal, err = NewCounter(meter,
		"ledger_goals_created_total", "Total number of goals created", "{goals}")
	if err != nil {
		return nil, err
	}
	lm.goalsCancelledTotal, err = NewCounter(meter,
		"ledger_goals_cancelled_total", "Total number of goals cancelled", "{goals}")
	if err != nil {
		return nil, err
	}
	lm.goalsCompletedTotal, err = NewCounter(meter,
		"ledger_goals_completed_total", "Total number of goals completed", "{goals}")
	if err != nil {
		return nil, err
	}
	lm.attachedTotal, err = NewCounter(meter,
		"ledger_deposits_attached_total", "Total number of deposits attached", "{deposits}")
	if err != nil {
		return nil, err
	}
	lm.attachedValueTotal, err = NewCounter(meter,
		"ledger_attached_value_total", "Total attached value in minor units", "{units}")
	if err != nil {
		return nil, err
	}
	lm.detachedTotal, err = NewCounter(meter,
		"ledger_deposits_detached_total", "Total number of deposits detached", "{deposits}")
	if err != nil {
		return nil, err
	}
	lm.transferredTotal, err = NewCounter(meter,
		"ledger_deposits_transferred_total", "Total number of deposits moved between goals", "{deposits}")
	if err != nil {
		return nil, err
	}
	lm.pledgedTotal, err = NewCounter(meter,
		"ledger_deposits_pledged_total", "Total number of pledge confirmations recorded", "{deposits}")
	if err != nil {
		return nil, err
	}

	return lm, nil
}

// EventTypes returns the event types the metrics handler consumes.
func (lm *LedgerMetrics) EventTypes() []string {
	return []string{
		goaldomain.EventTypeGoalCreated,
		goaldomain.EventTypeGoalCancelled,
		goaldomain.EventTypeGoalCompleted,
		goaldomain.EventTypeDepositAttached,
		goaldomain.EventTypeDepositDetached,
		goaldomain.EventTypeDepositTransferred,
		goaldomain.EventTypeDepositPledged,
	}
}

// Handle records the metric matching the event type.
func (lm *LedgerMetrics) Handle(ctx context.Context, ev shared.DomainEvent) error {
	switch e := ev.(type) {
	case *goaldomain.GoalCreatedEvent:
		lm.goalsCreatedTotal.Inc(ctx,
			AttrPool.String(string(e.Pool)),
			AttrGoalKind.String(string(e.Kind)),
		)
	case *goaldomain.GoalCancelledEvent:
		lm.goalsCancelledTotal.Inc(ctx, AttrPool.String(string(e.Pool)))
	case *goaldomain.GoalCompletedEvent:
		lm.goalsCompletedTotal.Inc(ctx, AttrPool.String(string(e.Pool)))
	case *goaldomain.DepositAttachedEvent:
		lm.attachedTotal.Inc(ctx, AttrPool.String(string(e.Pool)))
		lm.attachedValueTotal.Add(ctx, e.Value.IntPart(), AttrPool.String(string(e.Pool)))
	case *goaldomain.DepositDetachedEvent:
		lm.detachedTotal.Inc(ctx, AttrPool.String(string(e.Pool)))
	case *goaldomain.DepositTransferredEvent:
		lm.transferredTotal.Inc(ctx, AttrPool.String(string(e.Pool)))
	case *goaldomain.DepositPledgedEvent:
		lm.pledgedTotal.Inc(ctx, AttrPool.String(string(e.Pool)))
	default:
		lm.logger.Debug("unhandled event type for ledger metrics",
			zap.String("event_type", ev.EventType()))
	}
	return nil
}

var _ shared.EventHandler = (*LedgerMetrics)(nil)
