package telemetry

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"

	appgoal "github.com/goalledger/backend/internal/application/goal"
)

const (
	notificationValueAttached = "value_attached"
	notificationGoalCompleted = "goal_completed"

	outcomeSent   = "sent"
	outcomeFailed = "failed"
)

// InstrumentedScoreSink wraps a ScoreSink and counts notification outcomes.
// Errors pass through unchanged; the ledger engine already treats them as
// best-effort.
type InstrumentedScoreSink struct {
	next          appgoal.ScoreSink
	notifications *Counter
}

// NewInstrumentedScoreSink wraps next with an outcome counter on meter.
func NewInstrumentedScoreSink(next appgoal.ScoreSink, meter metric.Meter) (*InstrumentedScoreSink, error) {
	notifications, err := NewCounter(meter,
		"ledger_notifications_total",
		"Score sink notifications by kind and outcome",
		"1")
	if err != nil {
		return nil, err
	}
	return &InstrumentedScoreSink{next: next, notifications: notifications}, nil
}

// ValueAttached forwards the notification and records its outcome.
func (s *InstrumentedScoreSink) ValueAttached(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) error {
	err := s.next.ValueAttached(ctx, owner, amount)
	s.record(ctx, notificationValueAttached, err)
	return err
}

// GoalCompleted forwards the notification and records its outcome.
func (s *InstrumentedScoreSink) GoalCompleted(ctx context.Context, creator uuid.UUID, goalID uuid.UUID, totalValue decimal.Decimal) error {
	err := s.next.GoalCompleted(ctx, creator, goalID, totalValue)
	s.record(ctx, notificationGoalCompleted, err)
	return err
}

func (s *InstrumentedScoreSink) record(ctx context.Context, kind string, err error) {
	outcome := outcomeSent
	if err != nil {
		outcome = outcomeFailed
	}
	s.notifications.Inc(ctx, AttrOperation.String(kind), AttrOutcome.String(outcome))
}

var _ appgoal.ScoreSink = (*InstrumentedScoreSink)(nil)
