package goal

import (
	"context"

	"github.com/google/uuid"
)

// GoalRepository is the storage contract for the attachment ledger.
//
// Implementations must keep the per-goal attachment sequence and the global
// uniqueness index in step: a mutation commits both or neither. The engine
// serializes mutations per goal, so implementations only need atomicity, not
// their own per-goal scheduling.
type GoalRepository interface {
	// Create persists a new targeted goal.
	Create(ctx context.Context, g *Goal) error

	// CreateDefault persists a new default goal and registers it in the
	// default-goal index. Returns ErrDefaultGoalExists if the (pool, user)
	// pair already has one; the check and the insert are atomic.
	CreateDefault(ctx context.Context, g *Goal) error

	// FindByID loads a goal with its attachment sequence in order.
	FindByID(ctx context.Context, id uuid.UUID) (*Goal, error)

	// FindDefault resolves the default goal for a (pool, user) pair.
	// Returns shared.ErrNotFound if none is indexed.
	FindDefault(ctx context.Context, pool PoolRef, user uuid.UUID) (*Goal, error)

	// ClaimedGoal is the reverse lookup into the uniqueness index: which goal
	// currently holds (pool, owner, depositID). shared.ErrNotFound when
	// unattached.
	ClaimedGoal(ctx context.Context, pool PoolRef, owner uuid.UUID, depositID uint64) (uuid.UUID, error)

	// AppendAttachments appends the batch to the goal's sequence and claims
	// each deposit in the uniqueness index, all-or-nothing. Fails with
	// ErrAlreadyAttached when any deposit is already claimed and
	// ErrCapacityExceeded when the batch would exceed caps.
	AppendAttachments(ctx context.Context, goalID uuid.UUID, atts []Attachment, caps Capacity) error

	// RemoveAttachments removes the batch by strictly descending indices
	// using swap-with-last, releasing each uniqueness-index claim,
	// all-or-nothing. Fails with ErrInvalidRemovalOrder on misordered input.
	RemoveAttachments(ctx context.Context, goalID uuid.UUID, indices []int) error

	// MoveAttachment moves one attachment between two goals of the same pool
	// as a single unit: append to target, then remove from source. If the
	// target append fails the source is left untouched.
	MoveAttachment(ctx context.Context, fromID, toID uuid.UUID, owner uuid.UUID, depositID uint64, caps Capacity) error

	// SetPledged flips the one-way pledged flag on the attachment for
	// (owner, depositID) in the goal. Idempotent.
	SetPledged(ctx context.Context, goalID uuid.UUID, owner uuid.UUID, depositID uint64) error

	// MarkCancelled transitions the goal to Cancelled; ErrAlreadyTerminal if
	// the goal is already terminal.
	MarkCancelled(ctx context.Context, goalID uuid.UUID) error

	// MarkCompleted transitions the goal to Completed; ErrAlreadyTerminal if
	// the goal is already terminal.
	MarkCompleted(ctx context.Context, goalID uuid.UUID) error
}
