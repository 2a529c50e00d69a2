package goal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/goalledger/backend/internal/domain/goal"
)

// CreateGoalInput carries the caller-supplied fields for a targeted goal.
type CreateGoalInput struct {
	Creator      uuid.UUID
	Pool         domain.PoolRef
	TargetAmount decimal.Decimal
	// TargetDate may be zero to mean "minimum horizon".
	TargetDate  time.Time
	Name        string
	Description string
}

// ProgressResult is the paged aggregation of attachment values.
type ProgressResult struct {
	TotalValue decimal.Decimal `json:"total_value"`
	PercentBps int64           `json:"percent_bps"`
}
