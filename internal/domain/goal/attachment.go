package goal

import (
	"time"

	"github.com/google/uuid"
)

// PoolRef identifies the external custody pool a deposit lives in.
type PoolRef string

// Attachment binds one externally-custodied deposit to a goal.
// The goal exclusively owns its attachment sequence; the deposit itself
// never leaves the custody pool.
type Attachment struct {
	GoalID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_attachment_goal_position,priority:1" json:"goal_id"`
	Position   int       `gorm:"not null;uniqueIndex:idx_attachment_goal_position,priority:2" json:"position"`
	Owner      uuid.UUID `gorm:"type:uuid;not null;index" json:"owner"`
	DepositID  uint64    `gorm:"not null" json:"deposit_id"`
	AttachedAt time.Time `gorm:"not null" json:"attached_at"`
	// Pledged is a one-way flag: once an external pledge is confirmed it is
	// never cleared, even if the custody pool later reports the position
	// unpledged. Transfer and detach re-check the oracle directly.
	Pledged bool `gorm:"not null;default:false" json:"pledged"`
}

// TableName returns the table name for GORM
func (Attachment) TableName() string {
	return "goal_attachments"
}

// NewAttachment creates an attachment record for a deposit.
func NewAttachment(owner uuid.UUID, depositID uint64, pledged bool) Attachment {
	return Attachment{
		Owner:      owner,
		DepositID:  depositID,
		AttachedAt: time.Now(),
		Pledged:    pledged,
	}
}
