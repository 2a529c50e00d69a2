package goal

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/goalledger/backend/internal/domain/goal"
)

// Administrative surface: process-wide circuit breakers, capacity caps and
// the notifier whitelist. All calls require the admin capability.

// PauseCreation stops new goal creation.
func (s *LedgerService) PauseCreation(ctx context.Context, actor domain.Actor) error {
	return s.updateControls(ctx, actor, func(c *Controls) { c.CreationPaused = true })
}

// ResumeCreation re-enables goal creation.
func (s *LedgerService) ResumeCreation(ctx context.Context, actor domain.Actor) error {
	return s.updateControls(ctx, actor, func(c *Controls) { c.CreationPaused = false })
}

// PauseAttachments stops attach, transfer and auto-enroll.
func (s *LedgerService) PauseAttachments(ctx context.Context, actor domain.Actor) error {
	return s.updateControls(ctx, actor, func(c *Controls) { c.AttachmentsPaused = true })
}

// ResumeAttachments re-enables attachment mutations.
func (s *LedgerService) ResumeAttachments(ctx context.Context, actor domain.Actor) error {
	return s.updateControls(ctx, actor, func(c *Controls) { c.AttachmentsPaused = false })
}

// UpdateCapacity replaces the attachment caps. Zero means unlimited.
func (s *LedgerService) UpdateCapacity(ctx context.Context, actor domain.Actor, maxPerGoal, maxPerOwner int) error {
	return s.updateControls(ctx, actor, func(c *Controls) {
		c.MaxAttachmentsPerGoal = maxPerGoal
		c.MaxAttachmentsPerOwnerPerGoal = maxPerOwner
	})
}

// SetTrustedNotifier adds or removes an identity from the notifier
// whitelist.
func (s *LedgerService) SetTrustedNotifier(ctx context.Context, actor domain.Actor, id uuid.UUID, trusted bool) error {
	if err := domain.Authorize(actor, domain.OpAdminControls, uuid.Nil); err != nil {
		return err
	}
	if err := s.controls.SetTrustedNotifier(ctx, id, trusted); err != nil {
		return err
	}
	s.logger.Info("notifier whitelist updated",
		zap.String("notifier_id", id.String()),
		zap.Bool("trusted", trusted),
	)
	return nil
}

func (s *LedgerService) updateControls(ctx context.Context, actor domain.Actor, mutate func(*Controls)) error {
	if err := domain.Authorize(actor, domain.OpAdminControls, uuid.Nil); err != nil {
		return err
	}
	controls, err := s.controls.Current(ctx)
	if err != nil {
		return err
	}
	mutate(&controls)
	if err := s.controls.Update(ctx, controls); err != nil {
		return err
	}
	s.logger.Info("ledger controls updated",
		zap.Int("max_per_goal", controls.MaxAttachmentsPerGoal),
		zap.Int("max_per_owner", controls.MaxAttachmentsPerOwnerPerGoal),
		zap.Bool("creation_paused", controls.CreationPaused),
		zap.Bool("attachments_paused", controls.AttachmentsPaused),
	)
	return nil
}
