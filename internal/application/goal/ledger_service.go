package goal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domain "github.com/goalledger/backend/internal/domain/goal"
	"github.com/goalledger/backend/internal/domain/shared"
)

const (
	// DefaultMinHorizon is the minimum distance between now and a goal's
	// target date when no other horizon is configured.
	DefaultMinHorizon = 30 * 24 * time.Hour
)

// LedgerService is the goal lifecycle engine. Every mutating entry point is
// a single unit of work, serialized per affected goal through a keyed mutex;
// the repository commits the attachment sequence and the uniqueness index
// together. Oracle reads may block while the per-goal lock is held; there is
// no global engine lock.
type LedgerService struct {
	repo       domain.GoalRepository
	oracle     domain.PositionOracle
	controls   ControlsStore
	minHorizon time.Duration
	logger     *zap.Logger

	sink           ScoreSink
	tokens         ActorTokenVerifier
	eventPublisher shared.EventPublisher

	locks *keyedMutex
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(
	repo domain.GoalRepository,
	oracle domain.PositionOracle,
	controls ControlsStore,
	minHorizon time.Duration,
	logger *zap.Logger,
) *LedgerService {
	if minHorizon <= 0 {
		minHorizon = DefaultMinHorizon
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		repo:       repo,
		oracle:     oracle,
		controls:   controls,
		minHorizon: minHorizon,
		logger:     logger,
		locks:      newKeyedMutex(),
	}
}

// SetScoreSink sets the external scoring sink for best-effort notifications.
func (s *LedgerService) SetScoreSink(sink ScoreSink) {
	s.sink = sink
}

// SetEventPublisher sets the publisher for post-commit domain events.
func (s *LedgerService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetActorTokenVerifier sets the verifier used by the token-based notifier
// gateway.
func (s *LedgerService) SetActorTokenVerifier(v ActorTokenVerifier) {
	s.tokens = v
}

// CreateGoal creates a targeted goal.
func (s *LedgerService) CreateGoal(ctx context.Context, actor domain.Actor, input CreateGoalInput) (*domain.Goal, error) {
	if err := domain.Authorize(actor, domain.OpCreateGoal, input.Creator); err != nil {
		return nil, err
	}
	controls, err := s.controls.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("read controls: %w", err)
	}
	if controls.CreationPaused {
		return nil, domain.ErrCreationPaused
	}

	g, err := domain.NewTargetedGoal(input.Creator, input.Pool, input.TargetAmount, input.TargetDate, s.minHorizon, domain.Metadata{
		Name:        input.Name,
		Description: input.Description,
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, g.GetDomainEvents()...)
	g.ClearDomainEvents()
	s.logger.Info("goal created",
		zap.String("goal_id", g.ID.String()),
		zap.String("pool", string(g.Pool)),
		zap.String("target_amount", g.TargetAmount.String()),
	)
	return g, nil
}

// CreateDefaultGoal creates the open-ended default goal for (pool, user).
// Fails if one is already indexed for the pair.
func (s *LedgerService) CreateDefaultGoal(ctx context.Context, actor domain.Actor, user uuid.UUID, pool domain.PoolRef) (*domain.Goal, error) {
	if err := domain.Authorize(actor, domain.OpCreateDefault, user); err != nil {
		return nil, err
	}
	controls, err := s.controls.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("read controls: %w", err)
	}
	if controls.CreationPaused {
		return nil, domain.ErrCreationPaused
	}
	return s.createDefault(ctx, user, pool)
}

func (s *LedgerService) createDefault(ctx context.Context, user uuid.UUID, pool domain.PoolRef) (*domain.Goal, error) {
	g, err := domain.NewDefaultGoal(user, pool, s.minHorizon)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateDefault(ctx, g); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, g.GetDomainEvents()...)
	g.ClearDomainEvents()
	s.logger.Info("default goal created",
		zap.String("goal_id", g.ID.String()),
		zap.String("user", user.String()),
		zap.String("pool", string(pool)),
	)
	return g, nil
}

// Attach appends deposits to a goal's attachment sequence. All ids succeed
// or the whole call fails; on success one best-effort value notification is
// fired per deposit.
func (s *LedgerService) Attach(ctx context.Context, actor domain.Actor, goalID uuid.UUID, owner uuid.UUID, depositIDs []uint64) error {
	if owner == uuid.Nil || len(depositIDs) == 0 {
		return shared.ErrInvalidInput
	}
	if err := domain.Authorize(actor, domain.OpAttach, owner); err != nil {
		return err
	}
	controls, err := s.controls.Current(ctx)
	if err != nil {
		return fmt.Errorf("read controls: %w", err)
	}
	if controls.AttachmentsPaused {
		return domain.ErrAttachmentsPaused
	}

	unlock := s.locks.Lock(goalID)
	defer unlock()

	g, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		return err
	}
	return s.attachLocked(ctx, g, owner, depositIDs, controls)
}

// attachLocked performs the attach checks and mutation. The caller holds the
// per-goal lock.
func (s *LedgerService) attachLocked(ctx context.Context, g *domain.Goal, owner uuid.UUID, depositIDs []uint64, controls Controls) error {
	now := time.Now()
	if err := g.CanAttach(now); err != nil {
		return err
	}

	atts := make([]domain.Attachment, 0, len(depositIDs))
	values := make([]decimal.Decimal, 0, len(depositIDs))
	for _, depositID := range depositIDs {
		pos, err := s.oracle.Position(ctx, g.Pool, owner, depositID)
		if err != nil {
			return fmt.Errorf("oracle position %d: %w", depositID, err)
		}
		if !pos.Exists() {
			return domain.ErrDepositNotFound
		}
		if g.RequiresActiveLock() && !pos.Locked(now) {
			return domain.ErrNotLocked
		}
		atts = append(atts, domain.NewAttachment(owner, depositID, pos.Pledged))
		values = append(values, pos.Value)
	}

	startIndex := g.Len()
	if err := s.repo.AppendAttachments(ctx, g.ID, atts, controls.Capacity()); err != nil {
		return err
	}

	for i, att := range atts {
		outcome := NotificationOutcome{Sent: false, Reason: "no sink configured"}
		if s.sink != nil {
			outcome = outcomeOf(s.sink.ValueAttached(ctx, att.Owner, values[i]))
		}
		logOutcome(s.logger, "value_attached", outcome,
			zap.String("goal_id", g.ID.String()),
			zap.Uint64("deposit_id", att.DepositID),
		)
		s.publishEvents(ctx, domain.NewDepositAttachedEvent(g, att.Owner, att.DepositID, startIndex+i, values[i]))
	}
	return nil
}

// Detach removes a batch of attachments by strictly descending indices.
// Each referenced attachment must be owned by the caller and released by the
// custody pool; a cancelled goal waives the remaining lock time.
func (s *LedgerService) Detach(ctx context.Context, actor domain.Actor, goalID uuid.UUID, indices []int) error {
	if len(indices) == 0 {
		return shared.ErrInvalidInput
	}
	if err := domain.ValidateRemovalOrder(indices); err != nil {
		return err
	}

	unlock := s.locks.Lock(goalID)
	defer unlock()

	g, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		return err
	}

	now := time.Now()
	removed := make([]domain.Attachment, 0, len(indices))
	for _, idx := range indices {
		att, err := g.AttachmentAt(idx)
		if err != nil {
			return err
		}
		if err := domain.Authorize(actor, domain.OpDetach, att.Owner); err != nil {
			return err
		}
		if att.Pledged {
			return domain.ErrPledged
		}
		pos, err := s.oracle.Position(ctx, g.Pool, att.Owner, att.DepositID)
		if err != nil {
			return fmt.Errorf("oracle position %d: %w", att.DepositID, err)
		}
		if pos.Pledged {
			return domain.ErrPledged
		}
		if !g.Cancelled && pos.Locked(now) {
			return domain.ErrStillLocked
		}
		removed = append(removed, att)
	}

	if err := s.repo.RemoveAttachments(ctx, goalID, indices); err != nil {
		return err
	}

	for _, att := range removed {
		s.publishEvents(ctx, domain.NewDepositDetachedEvent(g, att.Owner, att.DepositID, g.Cancelled))
	}
	return nil
}

// Transfer moves one attachment between two goals of the same custody pool
// as a single unit of work. The source is untouched if the target append
// fails.
func (s *LedgerService) Transfer(ctx context.Context, actor domain.Actor, fromID, toID uuid.UUID, owner uuid.UUID, depositID uint64) error {
	if owner == uuid.Nil || fromID == toID {
		return shared.ErrInvalidInput
	}
	if err := domain.Authorize(actor, domain.OpTransfer, owner); err != nil {
		return err
	}
	controls, err := s.controls.Current(ctx)
	if err != nil {
		return fmt.Errorf("read controls: %w", err)
	}
	if controls.AttachmentsPaused {
		return domain.ErrAttachmentsPaused
	}

	unlock := s.locks.LockPair(fromID, toID)
	defer unlock()

	from, err := s.repo.FindByID(ctx, fromID)
	if err != nil {
		return err
	}
	to, err := s.repo.FindByID(ctx, toID)
	if err != nil {
		return err
	}
	if from.Pool != to.Pool {
		return shared.ErrInvalidInput
	}
	if from.IsTerminal() {
		return domain.ErrAlreadyTerminal
	}
	now := time.Now()
	if err := to.CanAttach(now); err != nil {
		return err
	}

	idx, ok := from.FindAttachment(owner, depositID)
	if !ok {
		return shared.ErrNotFound
	}
	att, _ := from.AttachmentAt(idx)
	if att.Pledged {
		return domain.ErrPledged
	}

	// Pledge state is re-queried fresh; the stored flag alone is a hint.
	pos, err := s.oracle.Position(ctx, from.Pool, owner, depositID)
	if err != nil {
		return fmt.Errorf("oracle position %d: %w", depositID, err)
	}
	if !pos.Exists() {
		return domain.ErrDepositNotFound
	}
	if pos.Pledged {
		return domain.ErrPledged
	}
	if !pos.Locked(now) {
		return domain.ErrNotLocked
	}

	if err := s.repo.MoveAttachment(ctx, fromID, toID, owner, depositID, controls.Capacity()); err != nil {
		return err
	}

	s.publishEvents(ctx, domain.NewDepositTransferredEvent(from, to, owner, depositID))
	return nil
}

// ReportPledged records an external pledge on an attachment. The report is
// only accepted when the custody pool independently confirms it; the flag is
// one-way and the call is idempotent.
func (s *LedgerService) ReportPledged(ctx context.Context, actor domain.Actor, goalID uuid.UUID, owner uuid.UUID, depositID uint64) error {
	if err := domain.Authorize(actor, domain.OpReportPledged, owner); err != nil {
		return err
	}

	unlock := s.locks.Lock(goalID)
	defer unlock()

	g, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		return err
	}
	idx, ok := g.FindAttachment(owner, depositID)
	if !ok {
		return shared.ErrNotFound
	}
	att, _ := g.AttachmentAt(idx)
	if att.Pledged {
		return nil
	}

	pos, err := s.oracle.Position(ctx, g.Pool, owner, depositID)
	if err != nil {
		return fmt.Errorf("oracle position %d: %w", depositID, err)
	}
	if !pos.Pledged {
		return domain.ErrNotPledgedInPool
	}

	if err := s.repo.SetPledged(ctx, goalID, owner, depositID); err != nil {
		return err
	}
	s.publishEvents(ctx, domain.NewDepositPledgedEvent(g, owner, depositID))
	return nil
}

// Cancel marks a goal cancelled. Attachments survive and become detachable
// with the lock waived. Refused while any attachment is pledged, per the
// stored flag or a fresh oracle confirmation.
func (s *LedgerService) Cancel(ctx context.Context, actor domain.Actor, goalID uuid.UUID) error {
	unlock := s.locks.Lock(goalID)
	defer unlock()

	g, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		return err
	}
	if err := domain.Authorize(actor, domain.OpCancel, g.CreatorID); err != nil {
		return err
	}
	if g.IsTerminal() {
		return domain.ErrAlreadyTerminal
	}

	for i := 0; i < g.Len(); i++ {
		att, _ := g.AttachmentAt(i)
		if att.Pledged {
			return domain.ErrHasPledgedAttachments
		}
		pos, err := s.oracle.Position(ctx, g.Pool, att.Owner, att.DepositID)
		if err != nil {
			return fmt.Errorf("oracle position %d: %w", att.DepositID, err)
		}
		if pos.Pledged {
			return domain.ErrHasPledgedAttachments
		}
	}

	if err := s.repo.MarkCancelled(ctx, goalID); err != nil {
		return err
	}
	s.publishEvents(ctx, domain.NewGoalCancelledEvent(g))
	s.logger.Info("goal cancelled", zap.String("goal_id", goalID.String()))
	return nil
}

// Finalize marks a targeted goal completed once its full progress reaches
// the target, and fires one best-effort completion notification.
func (s *LedgerService) Finalize(ctx context.Context, actor domain.Actor, goalID uuid.UUID) error {
	if err := domain.Authorize(actor, domain.OpFinalize, uuid.Nil); err != nil {
		return err
	}

	unlock := s.locks.Lock(goalID)
	defer unlock()

	g, err := s.repo.FindByID(ctx, goalID)
	if err != nil {
		return err
	}
	if g.IsTerminal() {
		return domain.ErrAlreadyTerminal
	}
	if g.Kind != domain.KindTargeted {
		return shared.NewDomainError("NOT_TARGETED", "Only targeted goals can be finalized")
	}

	total, err := s.sumAttachments(ctx, g, 0, g.Len())
	if err != nil {
		return err
	}
	if total.LessThan(g.TargetAmount) {
		return domain.ErrNotYetComplete
	}

	if err := s.repo.MarkCompleted(ctx, goalID); err != nil {
		return err
	}

	outcome := NotificationOutcome{Sent: false, Reason: "no sink configured"}
	if s.sink != nil {
		outcome = outcomeOf(s.sink.GoalCompleted(ctx, g.CreatorID, g.ID, total))
	}
	logOutcome(s.logger, "goal_completed", outcome, zap.String("goal_id", goalID.String()))

	s.publishEvents(ctx, domain.NewGoalCompletedEvent(g, total))
	s.logger.Info("goal completed",
		zap.String("goal_id", goalID.String()),
		zap.String("total_value", total.String()),
	)
	return nil
}

// AutoEnroll routes an unsolicited deposit into the user's default goal,
// creating the goal lazily. Only whitelisted notifier identities may call
// this.
func (s *LedgerService) AutoEnroll(ctx context.Context, actor domain.Actor, user uuid.UUID, pool domain.PoolRef, depositID uint64) error {
	if user == uuid.Nil || pool == "" {
		return shared.ErrInvalidInput
	}
	if err := domain.Authorize(actor, domain.OpAutoEnroll, uuid.Nil); err != nil {
		return err
	}
	trusted, err := s.controls.TrustedNotifier(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("read notifier whitelist: %w", err)
	}
	if !trusted {
		return shared.ErrNotAuthorized
	}

	controls, err := s.controls.Current(ctx)
	if err != nil {
		return fmt.Errorf("read controls: %w", err)
	}
	if controls.AttachmentsPaused {
		return domain.ErrAttachmentsPaused
	}

	g, err := s.defaultGoalForEnroll(ctx, user, pool)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(g.ID)
	defer unlock()

	// Reload under the lock; the goal may have changed since resolution.
	g, err = s.repo.FindByID(ctx, g.ID)
	if err != nil {
		return err
	}
	return s.attachLocked(ctx, g, user, []uint64{depositID}, controls)
}

// AutoEnrollWithToken is AutoEnroll for callers presenting a signed actor
// token instead of an established identity.
func (s *LedgerService) AutoEnrollWithToken(ctx context.Context, token string, user uuid.UUID, pool domain.PoolRef, depositID uint64) error {
	if s.tokens == nil {
		return shared.ErrNotAuthorized
	}
	actor, err := s.tokens.VerifyActorToken(ctx, token)
	if err != nil {
		return shared.ErrNotAuthorized
	}
	return s.AutoEnroll(ctx, actor, user, pool, depositID)
}

// defaultGoalForEnroll resolves or lazily creates the default goal for
// (pool, user). A losing racer falls back to the winner's goal.
func (s *LedgerService) defaultGoalForEnroll(ctx context.Context, user uuid.UUID, pool domain.PoolRef) (*domain.Goal, error) {
	g, err := s.repo.FindDefault(ctx, pool, user)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	g, err = s.createDefault(ctx, user, pool)
	if err == nil {
		return g, nil
	}
	if errors.Is(err, domain.ErrDefaultGoalExists) {
		return s.repo.FindDefault(ctx, pool, user)
	}
	return nil, err
}

// publishEvents publishes post-commit events best-effort.
func (s *LedgerService) publishEvents(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish domain events", zap.Error(err), zap.Int("count", len(events)))
	}
}
