package goal

import "github.com/goalledger/backend/internal/domain/shared"

// Ledger-specific domain errors. Callers match them with errors.Is.
var (
	ErrDepositNotFound       = shared.NewDomainError("DEPOSIT_NOT_FOUND", "Deposit position not found in custody pool")
	ErrAlreadyAttached       = shared.NewDomainError("ALREADY_ATTACHED", "Deposit is already attached to a goal")
	ErrCapacityExceeded      = shared.NewDomainError("CAPACITY_EXCEEDED", "Attachment capacity exceeded")
	ErrPledged               = shared.NewDomainError("PLEDGED", "Attachment is pledged and cannot be moved or released")
	ErrStillLocked           = shared.NewDomainError("STILL_LOCKED", "Deposit is still within its lock horizon")
	ErrNotLocked             = shared.NewDomainError("NOT_LOCKED", "Deposit is past its lock horizon")
	ErrAlreadyTerminal       = shared.NewDomainError("ALREADY_TERMINAL", "Goal is already cancelled or completed")
	ErrWindowClosed          = shared.NewDomainError("WINDOW_CLOSED", "Goal target date has passed")
	ErrNotYetComplete        = shared.NewDomainError("NOT_YET_COMPLETE", "Goal has not reached its target amount")
	ErrInvalidRemovalOrder   = shared.NewDomainError("INVALID_REMOVAL_ORDER", "Removal indices must be strictly descending")
	ErrDefaultGoalExists     = shared.NewDomainError("DEFAULT_GOAL_EXISTS", "A default goal already exists for this pool and user")
	ErrHorizonTooShort       = shared.NewDomainError("HORIZON_TOO_SHORT", "Target date is below the minimum horizon")
	ErrHasPledgedAttachments = shared.NewDomainError("HAS_PLEDGED_ATTACHMENTS", "Goal has pledged attachments and cannot be cancelled")
	ErrCreationPaused        = shared.NewDomainError("CREATION_PAUSED", "Goal creation is paused")
	ErrAttachmentsPaused     = shared.NewDomainError("ATTACHMENTS_PAUSED", "Deposit attachment is paused")
	ErrNotPledgedInPool      = shared.NewDomainError("NOT_PLEDGED_IN_POOL", "Custody pool does not report this deposit as pledged")
)
