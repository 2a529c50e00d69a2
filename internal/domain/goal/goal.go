package goal

import (
	"time"

	"github.com/goalledger/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes targeted goals from the per-(pool,user) default goal.
// The two kinds differ in lock handling on attach and in percent-of-target
// semantics, so every kind-dependent rule switches on Kind explicitly.
type Kind string

const (
	// KindTargeted is a goal with a positive target amount and a deadline.
	KindTargeted Kind = "targeted"
	// KindDefault is the open-ended catch-all goal for unsolicited deposits.
	KindDefault Kind = "default"
)

// Capacity holds the attachment caps enforced on every append.
// A zero or negative cap means unlimited.
type Capacity struct {
	MaxPerGoal  int
	MaxPerOwner int
}

// Goal is the aggregate root of the attachment ledger. It owns an ordered
// attachment sequence and moves through a strict lifecycle:
// Active -> {Cancelled, Completed}, terminal states being one-way and
// mutually exclusive. The record itself is never deleted.
type Goal struct {
	shared.BaseAggregateRoot
	CreatorID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Pool         PoolRef         `gorm:"type:varchar(100);not null;index"`
	Kind         Kind            `gorm:"type:varchar(20);not null"`
	TargetAmount decimal.Decimal `gorm:"type:decimal(30,10);not null;default:0"`
	TargetDate   time.Time       `gorm:"not null"`
	Name         string          `gorm:"type:varchar(200)"`
	Description  string          `gorm:"type:text"`
	Cancelled    bool            `gorm:"not null;default:false"`
	Completed    bool            `gorm:"not null;default:false"`

	// Ordered attachment sequence; Position mirrors the slice index.
	Attachments []Attachment `gorm:"foreignKey:GoalID;references:ID"`
}

// TableName returns the table name for GORM
func (Goal) TableName() string {
	return "goals"
}

// Metadata carries the caller-supplied descriptive fields of a goal.
type Metadata struct {
	Name        string
	Description string
}

// NewTargetedGoal creates a goal with a positive target amount.
// A zero targetDate means "use the minimum horizon"; anything shorter than
// now+minHorizon is rejected.
func NewTargetedGoal(creator uuid.UUID, pool PoolRef, targetAmount decimal.Decimal, targetDate time.Time, minHorizon time.Duration, meta Metadata) (*Goal, error) {
	if creator == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CREATOR", "Creator ID cannot be empty")
	}
	if pool == "" {
		return nil, shared.NewDomainError("INVALID_POOL", "Custody pool reference cannot be empty")
	}
	if !targetAmount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_TARGET", "Target amount must be positive")
	}

	now := time.Now()
	earliest := now.Add(minHorizon)
	if targetDate.IsZero() {
		targetDate = earliest
	} else if targetDate.Before(earliest) {
		return nil, ErrHorizonTooShort
	}

	g := &Goal{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CreatorID:         creator,
		Pool:              pool,
		Kind:              KindTargeted,
		TargetAmount:      targetAmount,
		TargetDate:        targetDate,
		Name:              meta.Name,
		Description:       meta.Description,
		Attachments:       make([]Attachment, 0),
	}
	g.AddDomainEvent(NewGoalCreatedEvent(g))
	return g, nil
}

// NewDefaultGoal creates the open-ended catch-all goal for a (pool, user)
// pair. It carries a zero target and the minimum horizon as its attach
// window.
func NewDefaultGoal(user uuid.UUID, pool PoolRef, minHorizon time.Duration) (*Goal, error) {
	if user == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	if pool == "" {
		return nil, shared.NewDomainError("INVALID_POOL", "Custody pool reference cannot be empty")
	}

	g := &Goal{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CreatorID:         user,
		Pool:              pool,
		Kind:              KindDefault,
		TargetAmount:      decimal.Zero,
		TargetDate:        time.Now().Add(minHorizon),
		Attachments:       make([]Attachment, 0),
	}
	g.AddDomainEvent(NewGoalCreatedEvent(g))
	return g, nil
}

// IsTerminal returns true once the goal is cancelled or completed.
func (g *Goal) IsTerminal() bool {
	return g.Cancelled || g.Completed
}

// CanAttach checks whether the goal can accept new attachments at the given
// instant.
func (g *Goal) CanAttach(now time.Time) error {
	if g.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if now.After(g.TargetDate) {
		return ErrWindowClosed
	}
	return nil
}

// RequiresActiveLock reports whether an incoming deposit must still be
// before its lock expiry to be attached.
func (g *Goal) RequiresActiveLock() bool {
	switch g.Kind {
	case KindTargeted:
		return true
	case KindDefault:
		return false
	}
	return true
}

// Len returns the length of the attachment sequence.
func (g *Goal) Len() int {
	return len(g.Attachments)
}

// AttachmentAt returns the attachment at the given index.
func (g *Goal) AttachmentAt(index int) (Attachment, error) {
	if index < 0 || index >= len(g.Attachments) {
		return Attachment{}, shared.NewDomainError("INDEX_OUT_OF_RANGE", "Attachment index out of range")
	}
	return g.Attachments[index], nil
}

// CountForOwner returns how many attachments in this goal belong to owner.
func (g *Goal) CountForOwner(owner uuid.UUID) int {
	n := 0
	for i := range g.Attachments {
		if g.Attachments[i].Owner == owner {
			n++
		}
	}
	return n
}

// FindAttachment locates the attachment for (owner, depositID).
func (g *Goal) FindAttachment(owner uuid.UUID, depositID uint64) (int, bool) {
	for i := range g.Attachments {
		if g.Attachments[i].Owner == owner && g.Attachments[i].DepositID == depositID {
			return i, true
		}
	}
	return -1, false
}

// AppendAttachment appends to the sequence after checking capacity.
// Returns the index the attachment landed at.
func (g *Goal) AppendAttachment(att Attachment, caps Capacity) (int, error) {
	if caps.MaxPerGoal > 0 && len(g.Attachments)+1 > caps.MaxPerGoal {
		return -1, ErrCapacityExceeded
	}
	if caps.MaxPerOwner > 0 && g.CountForOwner(att.Owner)+1 > caps.MaxPerOwner {
		return -1, ErrCapacityExceeded
	}

	att.GoalID = g.ID
	att.Position = len(g.Attachments)
	g.Attachments = append(g.Attachments, att)
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
	return att.Position, nil
}

// RemoveAttachmentAt removes the attachment at index by swapping the last
// element into its slot and truncating. O(1), but it relocates the last
// attachment, which is why batch removals must run in descending order.
func (g *Goal) RemoveAttachmentAt(index int) (Attachment, error) {
	if index < 0 || index >= len(g.Attachments) {
		return Attachment{}, shared.NewDomainError("INDEX_OUT_OF_RANGE", "Attachment index out of range")
	}

	removed := g.Attachments[index]
	last := len(g.Attachments) - 1
	if index != last {
		g.Attachments[index] = g.Attachments[last]
		g.Attachments[index].Position = index
	}
	g.Attachments = g.Attachments[:last]
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
	return removed, nil
}

// ValidateRemovalOrder rejects batch removal indices that are not strictly
// descending. Ascending removals would hit relocated elements.
func ValidateRemovalOrder(indices []int) error {
	for i := 1; i < len(indices); i++ {
		if indices[i] >= indices[i-1] {
			return ErrInvalidRemovalOrder
		}
	}
	return nil
}

// SetPledged flips the one-way pledged flag on the attachment for
// (owner, depositID). A no-op when the flag is already set.
func (g *Goal) SetPledged(owner uuid.UUID, depositID uint64) (bool, error) {
	i, ok := g.FindAttachment(owner, depositID)
	if !ok {
		return false, shared.ErrNotFound
	}
	if g.Attachments[i].Pledged {
		return false, nil
	}
	g.Attachments[i].Pledged = true
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
	return true, nil
}

// MarkCancelled transitions the goal into the Cancelled terminal state.
// Attachments are kept; cancellation waives their remaining lock time.
func (g *Goal) MarkCancelled() error {
	if g.IsTerminal() {
		return ErrAlreadyTerminal
	}
	g.Cancelled = true
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
	g.AddDomainEvent(NewGoalCancelledEvent(g))
	return nil
}

// MarkCompleted transitions the goal into the Completed terminal state.
func (g *Goal) MarkCompleted() error {
	if g.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if g.Kind != KindTargeted {
		return shared.NewDomainError("NOT_TARGETED", "Only targeted goals can be completed")
	}
	g.Completed = true
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
	return nil
}

// PercentBps converts an aggregate attachment value to basis points of the
// target. Default goals have no percent concept and always report zero.
func (g *Goal) PercentBps(total decimal.Decimal) int64 {
	switch g.Kind {
	case KindDefault:
		return 0
	case KindTargeted:
		if !g.TargetAmount.IsPositive() {
			return 0
		}
		return total.Mul(decimal.NewFromInt(10000)).Div(g.TargetAmount).Floor().IntPart()
	}
	return 0
}
