package goal

import (
	"github.com/goalledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeGoal = "Goal"

// Event type constants
const (
	EventTypeGoalCreated        = "GoalCreated"
	EventTypeDepositAttached    = "DepositAttached"
	EventTypeDepositDetached    = "DepositDetached"
	EventTypeDepositTransferred = "DepositTransferred"
	EventTypeDepositPledged     = "DepositPledged"
	EventTypeGoalCancelled      = "GoalCancelled"
	EventTypeGoalCompleted      = "GoalCompleted"
)

// GoalCreatedEvent is raised when a goal (targeted or default) is created
type GoalCreatedEvent struct {
	shared.BaseDomainEvent
	CreatorID    uuid.UUID       `json:"creator_id"`
	Pool         PoolRef         `json:"pool"`
	Kind         Kind            `json:"kind"`
	TargetAmount decimal.Decimal `json:"target_amount"`
}

// NewGoalCreatedEvent creates a new GoalCreatedEvent
func NewGoalCreatedEvent(g *Goal) *GoalCreatedEvent {
	return &GoalCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeGoalCreated, AggregateTypeGoal, g.ID),
		CreatorID:       g.CreatorID,
		Pool:            g.Pool,
		Kind:            g.Kind,
		TargetAmount:    g.TargetAmount,
	}
}

// EventType returns the event type name
func (e *GoalCreatedEvent) EventType() string {
	return EventTypeGoalCreated
}

// DepositAttachedEvent is raised for each deposit appended to a goal
type DepositAttachedEvent struct {
	shared.BaseDomainEvent
	Pool      PoolRef         `json:"pool"`
	Owner     uuid.UUID       `json:"owner"`
	DepositID uint64          `json:"deposit_id"`
	Index     int             `json:"index"`
	Value     decimal.Decimal `json:"value"`
}

// NewDepositAttachedEvent creates a new DepositAttachedEvent
func NewDepositAttachedEvent(g *Goal, owner uuid.UUID, depositID uint64, index int, value decimal.Decimal) *DepositAttachedEvent {
	return &DepositAttachedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDepositAttached, AggregateTypeGoal, g.ID),
		Pool:            g.Pool,
		Owner:           owner,
		DepositID:       depositID,
		Index:           index,
		Value:           value,
	}
}

// EventType returns the event type name
func (e *DepositAttachedEvent) EventType() string {
	return EventTypeDepositAttached
}

// DepositDetachedEvent is raised for each deposit removed from a goal
type DepositDetachedEvent struct {
	shared.BaseDomainEvent
	Pool       PoolRef   `json:"pool"`
	Owner      uuid.UUID `json:"owner"`
	DepositID  uint64    `json:"deposit_id"`
	LockWaived bool      `json:"lock_waived"`
}

// NewDepositDetachedEvent creates a new DepositDetachedEvent
func NewDepositDetachedEvent(g *Goal, owner uuid.UUID, depositID uint64, lockWaived bool) *DepositDetachedEvent {
	return &DepositDetachedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDepositDetached, AggregateTypeGoal, g.ID),
		Pool:            g.Pool,
		Owner:           owner,
		DepositID:       depositID,
		LockWaived:      lockWaived,
	}
}

// EventType returns the event type name
func (e *DepositDetachedEvent) EventType() string {
	return EventTypeDepositDetached
}

// DepositTransferredEvent is raised when an attachment moves between goals
type DepositTransferredEvent struct {
	shared.BaseDomainEvent
	Pool       PoolRef   `json:"pool"`
	FromGoalID uuid.UUID `json:"from_goal_id"`
	ToGoalID   uuid.UUID `json:"to_goal_id"`
	Owner      uuid.UUID `json:"owner"`
	DepositID  uint64    `json:"deposit_id"`
}

// NewDepositTransferredEvent creates a new DepositTransferredEvent
func NewDepositTransferredEvent(from, to *Goal, owner uuid.UUID, depositID uint64) *DepositTransferredEvent {
	return &DepositTransferredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDepositTransferred, AggregateTypeGoal, from.ID),
		Pool:            from.Pool,
		FromGoalID:      from.ID,
		ToGoalID:        to.ID,
		Owner:           owner,
		DepositID:       depositID,
	}
}

// EventType returns the event type name
func (e *DepositTransferredEvent) EventType() string {
	return EventTypeDepositTransferred
}

// DepositPledgedEvent is raised when an external pledge is confirmed
type DepositPledgedEvent struct {
	shared.BaseDomainEvent
	Pool      PoolRef   `json:"pool"`
	Owner     uuid.UUID `json:"owner"`
	DepositID uint64    `json:"deposit_id"`
}

// NewDepositPledgedEvent creates a new DepositPledgedEvent
func NewDepositPledgedEvent(g *Goal, owner uuid.UUID, depositID uint64) *DepositPledgedEvent {
	return &DepositPledgedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDepositPledged, AggregateTypeGoal, g.ID),
		Pool:            g.Pool,
		Owner:           owner,
		DepositID:       depositID,
	}
}

// EventType returns the event type name
func (e *DepositPledgedEvent) EventType() string {
	return EventTypeDepositPledged
}

// GoalCancelledEvent is raised when a goal is cancelled
type GoalCancelledEvent struct {
	shared.BaseDomainEvent
	CreatorID uuid.UUID `json:"creator_id"`
	Pool      PoolRef   `json:"pool"`
}

// NewGoalCancelledEvent creates a new GoalCancelledEvent
func NewGoalCancelledEvent(g *Goal) *GoalCancelledEvent {
	return &GoalCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeGoalCancelled, AggregateTypeGoal, g.ID),
		CreatorID:       g.CreatorID,
		Pool:            g.Pool,
	}
}

// EventType returns the event type name
func (e *GoalCancelledEvent) EventType() string {
	return EventTypeGoalCancelled
}

// GoalCompletedEvent is raised when a goal reaches its target and is finalized
type GoalCompletedEvent struct {
	shared.BaseDomainEvent
	CreatorID  uuid.UUID       `json:"creator_id"`
	Pool       PoolRef         `json:"pool"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// NewGoalCompletedEvent creates a new GoalCompletedEvent
func NewGoalCompletedEvent(g *Goal, total decimal.Decimal) *GoalCompletedEvent {
	return &GoalCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeGoalCompleted, AggregateTypeGoal, g.ID),
		CreatorID:       g.CreatorID,
		Pool:            g.Pool,
		TotalValue:      total,
	}
}

// EventType returns the event type name
func (e *GoalCompletedEvent) EventType() string {
	return EventTypeGoalCompleted
}
