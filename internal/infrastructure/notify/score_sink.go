package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appgoal "github.com/goalledger/backend/internal/application/goal"
)

// HTTPScoreSink delivers scoring events to an external XP service over
// HTTP. Delivery is best-effort from the caller's perspective; errors are
// returned so the engine can record the outcome, but never retried here.
type HTTPScoreSink struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPScoreSink creates a sink posting to the given endpoint.
func NewHTTPScoreSink(endpoint string, timeout time.Duration) *HTTPScoreSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPScoreSink{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type scoreEvent struct {
	Type       string          `json:"type"`
	Owner      string          `json:"owner"`
	GoalID     string          `json:"goal_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// ValueAttached reports an attached deposit's value for the owner.
func (s *HTTPScoreSink) ValueAttached(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) error {
	return s.post(ctx, scoreEvent{
		Type:       "value_attached",
		Owner:      owner.String(),
		Amount:     amount,
		OccurredAt: time.Now().UTC(),
	})
}

// GoalCompleted reports that the creator's goal reached its target.
func (s *HTTPScoreSink) GoalCompleted(ctx context.Context, creator uuid.UUID, goalID uuid.UUID, totalValue decimal.Decimal) error {
	return s.post(ctx, scoreEvent{
		Type:       "goal_completed",
		Owner:      creator.String(),
		GoalID:     goalID.String(),
		Amount:     totalValue,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *HTTPScoreSink) post(ctx context.Context, ev scoreEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal score event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver score event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a short error snippet for the log, ignore read failures.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("score sink returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// NopScoreSink swallows all notifications. Used when no sink endpoint is
// configured.
type NopScoreSink struct{}

func (NopScoreSink) ValueAttached(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) error {
	return nil
}

func (NopScoreSink) GoalCompleted(ctx context.Context, creator uuid.UUID, goalID uuid.UUID, totalValue decimal.Decimal) error {
	return nil
}

var (
	_ appgoal.ScoreSink = (*HTTPScoreSink)(nil)
	_ appgoal.ScoreSink = NopScoreSink{}
)
