package goal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/goalledger/backend/internal/domain/goal"
	"github.com/goalledger/backend/internal/domain/shared"
)

// GetGoal returns a goal by id.
func (s *LedgerService) GetGoal(ctx context.Context, id uuid.UUID) (*domain.Goal, error) {
	return s.repo.FindByID(ctx, id)
}

// DefaultGoal returns the quicksave (default) goal for a (pool, user) pair.
func (s *LedgerService) DefaultGoal(ctx context.Context, pool domain.PoolRef, user uuid.UUID) (*domain.Goal, error) {
	return s.repo.FindDefault(ctx, pool, user)
}

// AttachmentCount returns the length of the goal's attachment sequence.
func (s *LedgerService) AttachmentCount(ctx context.Context, goalID uuid.UUID) (int, error) {
	g, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		return 0, err
	}
	return g.Len(), nil
}

// AttachmentAt returns the attachment at the given index.
func (s *LedgerService) AttachmentAt(ctx context.Context, goalID uuid.UUID, index int) (domain.Attachment, error) {
	g, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		return domain.Attachment{}, err
	}
	return g.AttachmentAt(index)
}

// DepositGoal is the reverse lookup into the uniqueness index: which goal
// currently claims (pool, owner, depositID).
func (s *LedgerService) DepositGoal(ctx context.Context, pool domain.PoolRef, owner uuid.UUID, depositID uint64) (uuid.UUID, error) {
	return s.repo.ClaimedGoal(ctx, pool, owner, depositID)
}

// Progress sums oracle values over attachments in [start, min(end, len)).
// Paging bounds per-call cost on large sequences; values may move between
// pages, no snapshot is taken.
func (s *LedgerService) Progress(ctx context.Context, goalID uuid.UUID, start, end int) (ProgressResult, error) {
	if start < 0 || end < start {
		return ProgressResult{}, shared.ErrInvalidInput
	}
	g, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		return ProgressResult{}, err
	}
	if start >= g.Len() {
		return ProgressResult{TotalValue: decimal.Zero, PercentBps: 0}, nil
	}
	total, err := s.sumAttachments(ctx, g, start, end)
	if err != nil {
		return ProgressResult{}, err
	}
	return ProgressResult{TotalValue: total, PercentBps: g.PercentBps(total)}, nil
}

// FullProgress sums the whole attachment sequence.
func (s *LedgerService) FullProgress(ctx context.Context, goalID uuid.UUID) (ProgressResult, error) {
	g, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		return ProgressResult{}, err
	}
	total, err := s.sumAttachments(ctx, g, 0, g.Len())
	if err != nil {
		return ProgressResult{}, err
	}
	return ProgressResult{TotalValue: total, PercentBps: g.PercentBps(total)}, nil
}

// sumAttachments aggregates oracle values over [start, min(end, len)).
func (s *LedgerService) sumAttachments(ctx context.Context, g *domain.Goal, start, end int) (decimal.Decimal, error) {
	if end > g.Len() {
		end = g.Len()
	}
	total := decimal.Zero
	for i := start; i < end; i++ {
		att, err := g.AttachmentAt(i)
		if err != nil {
			return decimal.Zero, err
		}
		pos, err := s.oracle.Position(ctx, g.Pool, att.Owner, att.DepositID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("oracle position %d: %w", att.DepositID, err)
		}
		total = total.Add(pos.Value)
	}
	return total, nil
}
