package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/goalledger/backend/internal/domain/goal"
	"github.com/goalledger/backend/internal/domain/shared"
)

// DepositClaim is the persisted form of the global uniqueness index: one row
// per claimed (pool, owner, deposit), pointing at the owning goal.
type DepositClaim struct {
	Pool      string    `gorm:"type:varchar(100);primaryKey"`
	Owner     uuid.UUID `gorm:"type:uuid;primaryKey"`
	DepositID uint64    `gorm:"primaryKey"`
	GoalID    uuid.UUID `gorm:"type:uuid;not null;index"`
}

// TableName returns the table name for GORM
func (DepositClaim) TableName() string {
	return "deposit_claims"
}

// DefaultGoalIndex is the persisted (pool, user) -> default goal mapping.
type DefaultGoalIndex struct {
	Pool   string    `gorm:"type:varchar(100);primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;primaryKey"`
	GoalID uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (DefaultGoalIndex) TableName() string {
	return "default_goals"
}

// GormGoalRepository implements goal.GoalRepository on a relational store.
// Every mutation runs in one transaction so the attachment sequence and the
// uniqueness index commit together. Requires TranslateError so constraint
// violations surface as gorm.ErrDuplicatedKey.
type GormGoalRepository struct {
	db *gorm.DB
}

// NewGormGoalRepository creates a new GormGoalRepository
func NewGormGoalRepository(db *gorm.DB) *GormGoalRepository {
	return &GormGoalRepository{db: db}
}

// Create persists a new targeted goal.
func (r *GormGoalRepository) Create(ctx context.Context, g *goal.Goal) error {
	return r.db.WithContext(ctx).Omit("Attachments").Create(g).Error
}

// CreateDefault persists a default goal and its index entry in one
// transaction. The goal row goes first so the index row's foreign key is
// satisfied; the index primary key rejects a second goal for the pair and
// rolls the goal row back with it.
func (r *GormGoalRepository) CreateDefault(ctx context.Context, g *goal.Goal) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Attachments").Create(g).Error; err != nil {
			return err
		}
		idx := DefaultGoalIndex{Pool: string(g.Pool), UserID: g.CreatorID, GoalID: g.ID}
		if err := tx.Create(&idx).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return goal.ErrDefaultGoalExists
			}
			return err
		}
		return nil
	})
	return err
}

// FindByID loads a goal with its attachment sequence in position order.
func (r *GormGoalRepository) FindByID(ctx context.Context, id uuid.UUID) (*goal.Goal, error) {
	return r.findByID(r.db.WithContext(ctx), id)
}

func (r *GormGoalRepository) findByID(tx *gorm.DB, id uuid.UUID) (*goal.Goal, error) {
	var g goal.Goal
	err := tx.
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&g, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// FindDefault resolves the default goal for (pool, user).
func (r *GormGoalRepository) FindDefault(ctx context.Context, pool goal.PoolRef, user uuid.UUID) (*goal.Goal, error) {
	var idx DefaultGoalIndex
	err := r.db.WithContext(ctx).
		Where("pool = ? AND user_id = ?", string(pool), user).
		First(&idx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return r.FindByID(ctx, idx.GoalID)
}

// ClaimedGoal is the reverse lookup into the uniqueness index.
func (r *GormGoalRepository) ClaimedGoal(ctx context.Context, pool goal.PoolRef, owner uuid.UUID, depositID uint64) (uuid.UUID, error) {
	var claim DepositClaim
	err := r.db.WithContext(ctx).
		Where("pool = ? AND owner = ? AND deposit_id = ?", string(pool), owner, depositID).
		First(&claim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, shared.ErrNotFound
		}
		return uuid.Nil, err
	}
	return claim.GoalID, nil
}

// AppendAttachments appends the batch and claims each deposit,
// all-or-nothing.
func (r *GormGoalRepository) AppendAttachments(ctx context.Context, goalID uuid.UUID, atts []goal.Attachment, caps goal.Capacity) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := r.findByID(tx, goalID)
		if err != nil {
			return err
		}

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

		base := g.Len()
		for i, att := range atts {
			claim := DepositClaim{Pool: string(g.Pool), Owner: att.Owner, DepositID: att.DepositID, GoalID: goalID}
			if err := tx.Create(&claim).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return goal.ErrAlreadyAttached
				}
				return err
			}

			att.GoalID = goalID
			att.Position = base + i
			if err := tx.Create(&att).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveAttachments removes by strictly descending indices with
// swap-with-last semantics, releasing claims, all-or-nothing.
func (r *GormGoalRepository) RemoveAttachments(ctx context.Context, goalID uuid.UUID, indices []int) error {
	if err := goal.ValidateRemovalOrder(indices); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := r.findByID(tx, goalID)
		if err != nil {
			return err
		}
		for _, idx := range indices {
			if idx < 0 || idx >= g.Len() {
				return shared.NewDomainError("INDEX_OUT_OF_RANGE", "Attachment index out of range")
			}
		}

		for _, idx := range indices {
			last := g.Len() - 1
			removed, err := g.RemoveAttachmentAt(idx)
			if err != nil {
				return err
			}

			if err := tx.Where("goal_id = ? AND position = ?", goalID, idx).
				Delete(&goal.Attachment{}).Error; err != nil {
				return err
			}
			if idx != last {
				if err := tx.Model(&goal.Attachment{}).
					Where("goal_id = ? AND position = ?", goalID, last).
					Update("position", idx).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("pool = ? AND owner = ? AND deposit_id = ?", string(g.Pool), removed.Owner, removed.DepositID).
				Delete(&DepositClaim{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// MoveAttachment moves one attachment between two goals of the same pool:
// append to target, then swap-remove from source, one transaction.
func (r *GormGoalRepository) MoveAttachment(ctx context.Context, fromID, toID uuid.UUID, owner uuid.UUID, depositID uint64, caps goal.Capacity) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, err := r.findByID(tx, fromID)
		if err != nil {
			return err
		}
		to, err := r.findByID(tx, toID)
		if err != nil {
			return err
		}

		idx, found := from.FindAttachment(owner, depositID)
		if !found {
			return shared.ErrNotFound
		}
		att := from.Attachments[idx]

		if caps.MaxPerGoal > 0 && to.Len()+1 > caps.MaxPerGoal {
			return goal.ErrCapacityExceeded
		}
		if caps.MaxPerOwner > 0 && to.CountForOwner(owner)+1 > caps.MaxPerOwner {
			return goal.ErrCapacityExceeded
		}

		// Append to target.
		moved := att
		moved.GoalID = toID
		moved.Position = to.Len()
		if err := tx.Create(&moved).Error; err != nil {
			return err
		}

		// Swap-remove from source.
		last := from.Len() - 1
		if err := tx.Where("goal_id = ? AND position = ?", fromID, idx).
			Delete(&goal.Attachment{}).Error; err != nil {
			return err
		}
		if idx != last {
			if err := tx.Model(&goal.Attachment{}).
				Where("goal_id = ? AND position = ?", fromID, last).
				Update("position", idx).Error; err != nil {
				return err
			}
		}

		// Repoint the claim.
		return tx.Model(&DepositClaim{}).
			Where("pool = ? AND owner = ? AND deposit_id = ?", string(from.Pool), owner, depositID).
			Update("goal_id", toID).Error
	})
}

// SetPledged flips the one-way pledged flag; idempotent.
func (r *GormGoalRepository) SetPledged(ctx context.Context, goalID uuid.UUID, owner uuid.UUID, depositID uint64) error {
	res := r.db.WithContext(ctx).Model(&goal.Attachment{}).
		Where("goal_id = ? AND owner = ? AND deposit_id = ?", goalID, owner, depositID).
		Update("pledged", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkCancelled transitions the goal to Cancelled.
func (r *GormGoalRepository) MarkCancelled(ctx context.Context, goalID uuid.UUID) error {
	return r.markTerminal(ctx, goalID, "cancelled")
}

// MarkCompleted transitions the goal to Completed.
func (r *GormGoalRepository) MarkCompleted(ctx context.Context, goalID uuid.UUID) error {
	return r.markTerminal(ctx, goalID, "completed")
}

// markTerminal sets the flag only when the goal is still active, so the
// check and the transition are one statement.
func (r *GormGoalRepository) markTerminal(ctx context.Context, goalID uuid.UUID, column string) error {
	res := r.db.WithContext(ctx).Model(&goal.Goal{}).
		Where("id = ? AND cancelled = ? AND completed = ?", goalID, false, false).
		Update(column, true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, goalID); err != nil {
			return err
		}
		return goal.ErrAlreadyTerminal
	}
	return nil
}
