package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/goalledger/backend/internal/domain/goal"
	"github.com/goalledger/backend/internal/domain/shared"
)

type claimKey struct {
	pool    goal.PoolRef
	owner   uuid.UUID
	deposit uint64
}

type defaultKey struct {
	pool goal.PoolRef
	user uuid.UUID
}

// InMemoryGoalRepository keeps the goal arena, the deposit uniqueness index
// and the default-goal index as co-located maps behind one mutex, so every
// mutation updates the attachment sequence and the indexes as one committed
// unit. Suitable for single-instance deployments and tests.
type InMemoryGoalRepository struct {
	mu       sync.RWMutex
	goals    map[uuid.UUID]*goal.Goal
	claims   map[claimKey]uuid.UUID
	defaults map[defaultKey]uuid.UUID
}

// NewInMemoryGoalRepository creates an empty in-memory ledger store.
func NewInMemoryGoalRepository() *InMemoryGoalRepository {
	return &InMemoryGoalRepository{
		goals:    make(map[uuid.UUID]*goal.Goal),
		claims:   make(map[claimKey]uuid.UUID),
		defaults: make(map[defaultKey]uuid.UUID),
	}
}

// Create persists a new targeted goal.
func (r *InMemoryGoalRepository) Create(ctx context.Context, g *goal.Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.goals[g.ID]; exists {
		return shared.ErrAlreadyExists
	}
	r.goals[g.ID] = copyGoal(g)
	return nil
}

// CreateDefault persists a default goal and registers the (pool, user)
// index entry atomically.
func (r *InMemoryGoalRepository) CreateDefault(ctx context.Context, g *goal.Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := defaultKey{pool: g.Pool, user: g.CreatorID}
	if _, exists := r.defaults[key]; exists {
		return goal.ErrDefaultGoalExists
	}
	if _, exists := r.goals[g.ID]; exists {
		return shared.ErrAlreadyExists
	}
	r.goals[g.ID] = copyGoal(g)
	r.defaults[key] = g.ID
	return nil
}

// FindByID loads a goal with its attachment sequence.
func (r *InMemoryGoalRepository) FindByID(ctx context.Context, id uuid.UUID) (*goal.Goal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.goals[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return copyGoal(g), nil
}

// FindDefault resolves the default goal for (pool, user).
func (r *InMemoryGoalRepository) FindDefault(ctx context.Context, pool goal.PoolRef, user uuid.UUID) (*goal.Goal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.defaults[defaultKey{pool: pool, user: user}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	g, ok := r.goals[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return copyGoal(g), nil
}

// ClaimedGoal is the reverse lookup into the uniqueness index.
func (r *InMemoryGoalRepository) ClaimedGoal(ctx context.Context, pool goal.PoolRef, owner uuid.UUID, depositID uint64) (uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.claims[claimKey{pool: pool, owner: owner, deposit: depositID}]
	if !ok {
		return uuid.Nil, shared.ErrNotFound
	}
	return id, nil
}

// AppendAttachments appends the batch and claims each deposit,
// all-or-nothing.
func (r *InMemoryGoalRepository) AppendAttachments(ctx context.Context, goalID uuid.UUID, atts []goal.Attachment, caps goal.Capacity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[goalID]
	if !ok {
		return shared.ErrNotFound
	}

	if err := r.checkCapacity(g, atts, caps); err != nil {
		return err
	}

	seen := make(map[claimKey]struct{}, len(atts))
	for _, att := range atts {
		key := claimKey{pool: g.Pool, owner: att.Owner, deposit: att.DepositID}
		if _, claimed := r.claims[key]; claimed {
			return goal.ErrAlreadyAttached
		}
		if _, dup := seen[key]; dup {
			return goal.ErrAlreadyAttached
		}
		seen[key] = struct{}{}
	}

	// All checks passed; commit sequence and index together.
	for _, att := range atts {
		if _, err := g.AppendAttachment(att, goal.Capacity{}); err != nil {
			return err
		}
		r.claims[claimKey{pool: g.Pool, owner: att.Owner, deposit: att.DepositID}] = goalID
	}
	return nil
}

// checkCapacity verifies the whole batch fits before anything is appended.
func (r *InMemoryGoalRepository) checkCapacity(g *goal.Goal, atts []goal.Attachment, caps goal.Capacity) error {
	if caps.MaxPerGoal > 0 && g.Len()+len(atts) > caps.MaxPerGoal {
		return goal.ErrCapacityExceeded
	}
	if caps.MaxPerOwner > 0 {
		perOwner := make(map[uuid.UUID]int)
		for _, att := range atts {
			perOwner[att.Owner]++
		}
		for owner, n := range perOwner {
			if g.CountForOwner(owner)+n > caps.MaxPerOwner {
				return goal.ErrCapacityExceeded
			}
		}
	}
	return nil
}

// RemoveAttachments removes by strictly descending indices with
// swap-with-last, releasing claims, all-or-nothing.
func (r *InMemoryGoalRepository) RemoveAttachments(ctx context.Context, goalID uuid.UUID, indices []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[goalID]
	if !ok {
		return shared.ErrNotFound
	}
	if err := goal.ValidateRemovalOrder(indices); err != nil {
		return err
	}
	for _, idx := range indices {
		if idx < 0 || idx >= g.Len() {
			return shared.NewDomainError("INDEX_OUT_OF_RANGE", "Attachment index out of range")
		}
	}

	for _, idx := range indices {
		removed, err := g.RemoveAttachmentAt(idx)
		if err != nil {
			return err
		}
		delete(r.claims, claimKey{pool: g.Pool, owner: removed.Owner, deposit: removed.DepositID})
	}
	return nil
}

// MoveAttachment moves one attachment between two goals of the same pool as
// one committed unit; the source is untouched when the target append fails.
func (r *InMemoryGoalRepository) MoveAttachment(ctx context.Context, fromID, toID uuid.UUID, owner uuid.UUID, depositID uint64, caps goal.Capacity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, ok := r.goals[fromID]
	if !ok {
		return shared.ErrNotFound
	}
	to, ok := r.goals[toID]
	if !ok {
		return shared.ErrNotFound
	}

	idx, found := from.FindAttachment(owner, depositID)
	if !found {
		return shared.ErrNotFound
	}
	att := from.Attachments[idx]

	if _, err := to.AppendAttachment(att, caps); err != nil {
		return err
	}
	if _, err := from.RemoveAttachmentAt(idx); err != nil {
		return err
	}
	r.claims[claimKey{pool: from.Pool, owner: owner, deposit: depositID}] = toID
	return nil
}

// SetPledged flips the one-way pledged flag; idempotent.
func (r *InMemoryGoalRepository) SetPledged(ctx context.Context, goalID uuid.UUID, owner uuid.UUID, depositID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[goalID]
	if !ok {
		return shared.ErrNotFound
	}
	_, err := g.SetPledged(owner, depositID)
	return err
}

// MarkCancelled transitions the goal to Cancelled.
func (r *InMemoryGoalRepository) MarkCancelled(ctx context.Context, goalID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[goalID]
	if !ok {
		return shared.ErrNotFound
	}
	return g.MarkCancelled()
}

// MarkCompleted transitions the goal to Completed.
func (r *InMemoryGoalRepository) MarkCompleted(ctx context.Context, goalID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[goalID]
	if !ok {
		return shared.ErrNotFound
	}
	return g.MarkCompleted()
}

// copyGoal deep-copies a goal so callers cannot mutate stored state.
func copyGoal(g *goal.Goal) *goal.Goal {
	cp := *g
	cp.ClearDomainEvents()
	cp.Attachments = make([]goal.Attachment, len(g.Attachments))
	copy(cp.Attachments, g.Attachments)
	return &cp
}
