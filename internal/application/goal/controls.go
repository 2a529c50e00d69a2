package goal

import (
	"context"

	"github.com/google/uuid"

	domain "github.com/goalledger/backend/internal/domain/goal"
)

// Controls are the process-wide circuit breakers and capacity caps read on
// every mutating call. Zero caps mean unlimited.
type Controls struct {
	MaxAttachmentsPerGoal         int
	MaxAttachmentsPerOwnerPerGoal int
	CreationPaused                bool
	AttachmentsPaused             bool
}

// Capacity converts the caps into the domain capacity check input.
func (c Controls) Capacity() domain.Capacity {
	return domain.Capacity{
		MaxPerGoal:  c.MaxAttachmentsPerGoal,
		MaxPerOwner: c.MaxAttachmentsPerOwnerPerGoal,
	}
}

// ControlsStore holds the runtime controls and the notifier whitelist.
// Reads happen on the hot path; implementations should be cheap.
type ControlsStore interface {
	// Current returns the controls in effect.
	Current(ctx context.Context) (Controls, error)
	// Update replaces the controls.
	Update(ctx context.Context, c Controls) error
	// TrustedNotifier reports whether the caller identity may auto-enroll
	// deposits on behalf of arbitrary users.
	TrustedNotifier(ctx context.Context, id uuid.UUID) (bool, error)
	// SetTrustedNotifier adds or removes a caller identity from the whitelist.
	SetTrustedNotifier(ctx context.Context, id uuid.UUID, trusted bool) error
}
