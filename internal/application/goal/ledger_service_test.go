package goal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "github.com/goalledger/backend/internal/domain/goal"
	"github.com/goalledger/backend/internal/domain/shared"
	"github.com/goalledger/backend/internal/infrastructure/persistence"
)

const testMinHorizon = 24 * time.Hour

type oracleKey struct {
	pool    domain.PoolRef
	owner   uuid.UUID
	deposit uint64
}

// stubOracle is a map-backed PositionOracle.
type stubOracle struct {
	mu        sync.Mutex
	positions map[oracleKey]domain.Position
	err       error
}

func newStubOracle() *stubOracle {
	return &stubOracle{positions: make(map[oracleKey]domain.Position)}
}

func (o *stubOracle) set(pool domain.PoolRef, owner uuid.UUID, depositID uint64, pos domain.Position) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.positions[oracleKey{pool: pool, owner: owner, deposit: depositID}] = pos
}

func (o *stubOracle) Position(ctx context.Context, pool domain.PoolRef, owner uuid.UUID, depositID uint64) (domain.Position, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return domain.Position{}, o.err
	}
	return o.positions[oracleKey{pool: pool, owner: owner, deposit: depositID}], nil
}

// memControls is a test-local ControlsStore. The cache package ships the real
// implementations; it imports this package, so tests here carry their own.
type memControls struct {
	mu        sync.Mutex
	controls  Controls
	notifiers map[uuid.UUID]struct{}
}

func newMemControls() *memControls {
	return &memControls{notifiers: make(map[uuid.UUID]struct{})}
}

func (m *memControls) Current(ctx context.Context) (Controls, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controls, nil
}

func (m *memControls) Update(ctx context.Context, c Controls) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controls = c
	return nil
}

func (m *memControls) TrustedNotifier(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.notifiers[id]
	return ok, nil
}

func (m *memControls) SetTrustedNotifier(ctx context.Context, id uuid.UUID, trusted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if trusted {
		m.notifiers[id] = struct{}{}
	} else {
		delete(m.notifiers, id)
	}
	return nil
}

func (m *memControls) set(mutate func(*Controls)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mutate(&m.controls)
}

type sinkCall struct {
	owner  uuid.UUID
	goalID uuid.UUID
	amount decimal.Decimal
}

// fakeSink records score notifications and can be told to fail.
type fakeSink struct {
	mu        sync.Mutex
	attached  []sinkCall
	completed []sinkCall
	fail      bool
}

func (s *fakeSink) ValueAttached(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assert.AnError
	}
	s.attached = append(s.attached, sinkCall{owner: owner, amount: amount})
	return nil
}

func (s *fakeSink) GoalCompleted(ctx context.Context, creator uuid.UUID, goalID uuid.UUID, totalValue decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assert.AnError
	}
	s.completed = append(s.completed, sinkCall{owner: creator, goalID: goalID, amount: totalValue})
	return nil
}

func (s *fakeSink) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *fakeSink) completedCalls() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sinkCall, len(s.completed))
	copy(out, s.completed)
	return out
}

// capturePublisher records published domain events.
type capturePublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturePublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturePublisher) ofType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	repo     *persistence.InMemoryGoalRepository
	oracle   *stubOracle
	controls *memControls
	sink     *fakeSink
	events   *capturePublisher
	svc      *LedgerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     persistence.NewInMemoryGoalRepository(),
		oracle:   newStubOracle(),
		controls: newMemControls(),
		sink:     &fakeSink{},
		events:   &capturePublisher{},
	}
	f.svc = NewLedgerService(f.repo, f.oracle, f.controls, testMinHorizon, zap.NewNop())
	f.svc.SetScoreSink(f.sink)
	f.svc.SetEventPublisher(f.events)
	return f
}

func (f *fixture) targetedGoal(t *testing.T, creator uuid.UUID, pool domain.PoolRef, target int64) *domain.Goal {
	t.Helper()
	g, err := f.svc.CreateGoal(context.Background(), domain.NewActor(creator), CreateGoalInput{
		Creator:      creator,
		Pool:         pool,
		TargetAmount: decimal.NewFromInt(target),
		Name:         "test goal",
	})
	require.NoError(t, err)
	return g
}

// lockedPos is a deposit still inside its lock horizon.
func lockedPos(value int64) domain.Position {
	return domain.Position{Value: decimal.NewFromInt(value), LockEnd: time.Now().Add(time.Hour)}
}

// expiredPos is a deposit past its lock horizon.
func expiredPos(value int64) domain.Position {
	return domain.Position{Value: decimal.NewFromInt(value), LockEnd: time.Now().Add(-time.Hour)}
}

func (f *fixture) attach(t *testing.T, g *domain.Goal, owner uuid.UUID, depositIDs ...uint64) {
	t.Helper()
	for _, id := range depositIDs {
		f.oracle.set(g.Pool, owner, id, lockedPos(100))
	}
	require.NoError(t, f.svc.Attach(context.Background(), domain.NewActor(owner), g.ID, owner, depositIDs))
}

func TestCreateGoal(t *testing.T) {
	ctx := context.Background()
	creator := uuid.New()

	t.Run("creates a targeted goal", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, creator, "pool-main", 1000)
		assert.Equal(t, domain.KindTargeted, g.Kind)
		assert.Equal(t, creator, g.CreatorID)
		assert.False(t, g.IsTerminal())

		loaded, err := f.svc.GetGoal(ctx, g.ID)
		require.NoError(t, err)
		assert.True(t, loaded.TargetAmount.Equal(decimal.NewFromInt(1000)))
		assert.Len(t, f.events.ofType(domain.EventTypeGoalCreated), 1)
	})

	t.Run("rejects a target date below the horizon", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateGoal(ctx, domain.NewActor(creator), CreateGoalInput{
			Creator:      creator,
			Pool:         "pool-main",
			TargetAmount: decimal.NewFromInt(1000),
			TargetDate:   time.Now().Add(time.Hour),
		})
		assert.ErrorIs(t, err, domain.ErrHorizonTooShort)
	})

	t.Run("stranger cannot create for another user", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateGoal(ctx, domain.NewActor(uuid.New()), CreateGoalInput{
			Creator:      creator,
			Pool:         "pool-main",
			TargetAmount: decimal.NewFromInt(1000),
		})
		assert.ErrorIs(t, err, shared.ErrNotAuthorized)
	})

	t.Run("backend capability may create on behalf", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateGoal(ctx, domain.NewActor(uuid.New(), domain.CapabilityBackend), CreateGoalInput{
			Creator:      creator,
			Pool:         "pool-main",
			TargetAmount: decimal.NewFromInt(1000),
		})
		assert.NoError(t, err)
	})

	t.Run("creation pause blocks new goals", func(t *testing.T) {
		f := newFixture(t)
		f.controls.set(func(c *Controls) { c.CreationPaused = true })
		_, err := f.svc.CreateGoal(ctx, domain.NewActor(creator), CreateGoalInput{
			Creator:      creator,
			Pool:         "pool-main",
			TargetAmount: decimal.NewFromInt(1000),
		})
		assert.ErrorIs(t, err, domain.ErrCreationPaused)
	})
}

func TestCreateDefaultGoal(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()

	t.Run("one default goal per pool and user", func(t *testing.T) {
		f := newFixture(t)
		g, err := f.svc.CreateDefaultGoal(ctx, domain.NewActor(user), user, "pool-main")
		require.NoError(t, err)
		assert.Equal(t, domain.KindDefault, g.Kind)

		_, err = f.svc.CreateDefaultGoal(ctx, domain.NewActor(user), user, "pool-main")
		assert.ErrorIs(t, err, domain.ErrDefaultGoalExists)

		// A different pool gets its own default goal.
		_, err = f.svc.CreateDefaultGoal(ctx, domain.NewActor(user), user, "pool-other")
		assert.NoError(t, err)
	})

	t.Run("explicit creation honors the pause", func(t *testing.T) {
		f := newFixture(t)
		f.controls.set(func(c *Controls) { c.CreationPaused = true })
		_, err := f.svc.CreateDefaultGoal(ctx, domain.NewActor(user), user, "pool-main")
		assert.ErrorIs(t, err, domain.ErrCreationPaused)
	})
}

func TestAttach(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("attaches a batch in order", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1, 2, 3)

		n, err := f.svc.AttachmentCount(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		att, err := f.svc.AttachmentAt(ctx, g.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), att.DepositID)
		assert.Equal(t, owner, att.Owner)

		claimed, err := f.svc.DepositGoal(ctx, "pool-main", owner, 2)
		require.NoError(t, err)
		assert.Equal(t, g.ID, claimed)

		assert.Len(t, f.events.ofType(domain.EventTypeDepositAttached), 3)
	})

	t.Run("a deposit attaches to at most one goal", func(t *testing.T) {
		f := newFixture(t)
		a := f.targetedGoal(t, owner, "pool-main", 1000)
		b := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, a, owner, 7)

		err := f.svc.Attach(ctx, domain.NewActor(owner), b.ID, owner, []uint64{7})
		assert.ErrorIs(t, err, domain.ErrAlreadyAttached)

		err = f.svc.Attach(ctx, domain.NewActor(owner), a.ID, owner, []uint64{7})
		assert.ErrorIs(t, err, domain.ErrAlreadyAttached)
	})

	t.Run("unknown deposit is rejected", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		err := f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{99})
		assert.ErrorIs(t, err, domain.ErrDepositNotFound)
	})

	t.Run("targeted goal requires an active lock", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.oracle.set("pool-main", owner, 5, expiredPos(100))
		err := f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{5})
		assert.ErrorIs(t, err, domain.ErrNotLocked)
	})

	t.Run("batch is all or nothing", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.oracle.set("pool-main", owner, 1, lockedPos(100))
		// Deposit 2 is unknown so the whole batch must fail.
		err := f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1, 2})
		assert.ErrorIs(t, err, domain.ErrDepositNotFound)

		n, err := f.svc.AttachmentCount(ctx, g.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("per-goal capacity caps the batch", func(t *testing.T) {
		f := newFixture(t)
		f.controls.set(func(c *Controls) { c.MaxAttachmentsPerGoal = 2 })
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		for _, id := range []uint64{1, 2, 3} {
			f.oracle.set("pool-main", owner, id, lockedPos(100))
		}
		err := f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1, 2, 3})
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

		n, err := f.svc.AttachmentCount(ctx, g.ID)
		require.NoError(t, err)
		assert.Zero(t, n)

		// A batch inside the cap still fits.
		require.NoError(t, f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1, 2}))
	})

	t.Run("per-owner capacity is enforced", func(t *testing.T) {
		f := newFixture(t)
		f.controls.set(func(c *Controls) { c.MaxAttachmentsPerOwnerPerGoal = 1 })
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1)

		f.oracle.set("pool-main", owner, 2, lockedPos(100))
		err := f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{2})
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

		// Another owner has their own allowance.
		other := uuid.New()
		f.oracle.set("pool-main", other, 3, lockedPos(100))
		assert.NoError(t, f.svc.Attach(ctx, domain.NewActor(other), g.ID, other, []uint64{3}))
	})

	t.Run("attachment pause blocks attach", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.controls.set(func(c *Controls) { c.AttachmentsPaused = true })
		f.oracle.set("pool-main", owner, 1, lockedPos(100))
		err := f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1})
		assert.ErrorIs(t, err, domain.ErrAttachmentsPaused)
	})

	t.Run("empty batch is invalid", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		err := f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, nil)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("missing goal", func(t *testing.T) {
		f := newFixture(t)
		f.oracle.set("pool-main", owner, 1, lockedPos(100))
		err := f.svc.Attach(ctx, domain.NewActor(owner), uuid.New(), owner, []uint64{1})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestDetach(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	// release makes every attached deposit detachable.
	release := func(f *fixture, pool domain.PoolRef, ids ...uint64) {
		for _, id := range ids {
			f.oracle.set(pool, owner, id, expiredPos(100))
		}
	}

	t.Run("removes by descending indices with swap-with-last", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1, 2, 3, 4, 5)
		release(f, "pool-main", 1, 2, 3, 4, 5)

		require.NoError(t, f.svc.Detach(ctx, domain.NewActor(owner), g.ID, []int{3, 1}))

		// [1 2 3 4 5] -> remove idx 3 -> [1 2 3 5] -> remove idx 1 -> [1 5 3]
		loaded, err := f.svc.GetGoal(ctx, g.ID)
		require.NoError(t, err)
		ids := make([]uint64, 0, loaded.Len())
		for _, att := range loaded.Attachments {
			ids = append(ids, att.DepositID)
		}
		assert.Equal(t, []uint64{1, 5, 3}, ids)

		// Positions mirror slice indices after relocation.
		for i, att := range loaded.Attachments {
			assert.Equal(t, i, att.Position)
		}

		// The released deposits are claimable again.
		_, err = f.svc.DepositGoal(ctx, "pool-main", owner, 4)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		other := f.targetedGoal(t, owner, "pool-main", 500)
		f.oracle.set("pool-main", owner, 2, lockedPos(100))
		assert.NoError(t, f.svc.Attach(ctx, domain.NewActor(owner), other.ID, owner, []uint64{2}))
	})

	t.Run("ascending indices are rejected before any removal", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1, 2, 3)
		release(f, "pool-main", 1, 2, 3)

		err := f.svc.Detach(ctx, domain.NewActor(owner), g.ID, []int{0, 1, 2})
		assert.ErrorIs(t, err, domain.ErrInvalidRemovalOrder)

		n, err := f.svc.AttachmentCount(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("locked deposit cannot be detached from an active goal", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1)
		err := f.svc.Detach(ctx, domain.NewActor(owner), g.ID, []int{0})
		assert.ErrorIs(t, err, domain.ErrStillLocked)
	})

	t.Run("cancellation waives the lock", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1)
		require.NoError(t, f.svc.Cancel(ctx, domain.NewActor(owner), g.ID))

		require.NoError(t, f.svc.Detach(ctx, domain.NewActor(owner), g.ID, []int{0}))

		detached := f.events.ofType(domain.EventTypeDepositDetached)
		require.Len(t, detached, 1)
		assert.True(t, detached[0].(*domain.DepositDetachedEvent).LockWaived)
	})

	t.Run("only the owner may detach", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1)
		release(f, "pool-main", 1)

		err := f.svc.Detach(ctx, domain.NewActor(uuid.New(), domain.CapabilityAdmin), g.ID, []int{0})
		assert.ErrorIs(t, err, shared.ErrNotAuthorized)
	})

	t.Run("out of range index", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1)
		release(f, "pool-main", 1)
		assert.Error(t, f.svc.Detach(ctx, domain.NewActor(owner), g.ID, []int{5}))
	})
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("moves the attachment and its claim", func(t *testing.T) {
		f := newFixture(t)
		from := f.targetedGoal(t, owner, "pool-main", 1000)
		to := f.targetedGoal(t, owner, "pool-main", 500)
		f.attach(t, from, owner, 1)

		require.NoError(t, f.svc.Transfer(ctx, domain.NewActor(owner), from.ID, to.ID, owner, 1))

		nFrom, _ := f.svc.AttachmentCount(ctx, from.ID)
		nTo, _ := f.svc.AttachmentCount(ctx, to.ID)
		assert.Zero(t, nFrom)
		assert.Equal(t, 1, nTo)

		claimed, err := f.svc.DepositGoal(ctx, "pool-main", owner, 1)
		require.NoError(t, err)
		assert.Equal(t, to.ID, claimed)
		assert.Len(t, f.events.ofType(domain.EventTypeDepositTransferred), 1)
	})

	t.Run("full target leaves the source untouched", func(t *testing.T) {
		f := newFixture(t)
		from := f.targetedGoal(t, owner, "pool-main", 1000)
		to := f.targetedGoal(t, owner, "pool-main", 500)
		f.attach(t, from, owner, 1)
		f.attach(t, to, owner, 2)

		f.controls.set(func(c *Controls) { c.MaxAttachmentsPerGoal = 1 })
		err := f.svc.Transfer(ctx, domain.NewActor(owner), from.ID, to.ID, owner, 1)
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

		claimed, err := f.svc.DepositGoal(ctx, "pool-main", owner, 1)
		require.NoError(t, err)
		assert.Equal(t, from.ID, claimed)
		nFrom, _ := f.svc.AttachmentCount(ctx, from.ID)
		assert.Equal(t, 1, nFrom)
	})

	t.Run("goals must share a custody pool", func(t *testing.T) {
		f := newFixture(t)
		from := f.targetedGoal(t, owner, "pool-main", 1000)
		to := f.targetedGoal(t, owner, "pool-other", 500)
		f.attach(t, from, owner, 1)

		err := f.svc.Transfer(ctx, domain.NewActor(owner), from.ID, to.ID, owner, 1)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("same goal is invalid", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		err := f.svc.Transfer(ctx, domain.NewActor(owner), g.ID, g.ID, owner, 1)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("expired lock blocks transfer", func(t *testing.T) {
		f := newFixture(t)
		from := f.targetedGoal(t, owner, "pool-main", 1000)
		to := f.targetedGoal(t, owner, "pool-main", 500)
		f.attach(t, from, owner, 1)
		f.oracle.set("pool-main", owner, 1, expiredPos(100))

		err := f.svc.Transfer(ctx, domain.NewActor(owner), from.ID, to.ID, owner, 1)
		assert.ErrorIs(t, err, domain.ErrNotLocked)
	})

	t.Run("terminal target refuses the move", func(t *testing.T) {
		f := newFixture(t)
		from := f.targetedGoal(t, owner, "pool-main", 1000)
		to := f.targetedGoal(t, owner, "pool-main", 500)
		f.attach(t, from, owner, 1)
		require.NoError(t, f.svc.Cancel(ctx, domain.NewActor(owner), to.ID))

		err := f.svc.Transfer(ctx, domain.NewActor(owner), from.ID, to.ID, owner, 1)
		assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
	})

	t.Run("attachment pause blocks transfer", func(t *testing.T) {
		f := newFixture(t)
		from := f.targetedGoal(t, owner, "pool-main", 1000)
		to := f.targetedGoal(t, owner, "pool-main", 500)
		f.attach(t, from, owner, 1)
		f.controls.set(func(c *Controls) { c.AttachmentsPaused = true })

		err := f.svc.Transfer(ctx, domain.NewActor(owner), from.ID, to.ID, owner, 1)
		assert.ErrorIs(t, err, domain.ErrAttachmentsPaused)
	})
}

func TestReportPledged(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("pledge must be confirmed by the pool", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1)

		err := f.svc.ReportPledged(ctx, domain.NewActor(owner), g.ID, owner, 1)
		assert.ErrorIs(t, err, domain.ErrNotPledgedInPool)
	})

	t.Run("confirmed pledge sticks and blocks movement", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		other := f.targetedGoal(t, owner, "pool-main", 500)
		f.attach(t, g, owner, 1)

		pos := lockedPos(100)
		pos.Pledged = true
		f.oracle.set("pool-main", owner, 1, pos)

		require.NoError(t, f.svc.ReportPledged(ctx, domain.NewActor(owner), g.ID, owner, 1))
		// Idempotent.
		require.NoError(t, f.svc.ReportPledged(ctx, domain.NewActor(owner), g.ID, owner, 1))
		assert.Len(t, f.events.ofType(domain.EventTypeDepositPledged), 1)

		att, err := f.svc.AttachmentAt(ctx, g.ID, 0)
		require.NoError(t, err)
		assert.True(t, att.Pledged)

		// Even after the pool releases the lock the stored flag blocks detach.
		f.oracle.set("pool-main", owner, 1, expiredPos(100))
		assert.ErrorIs(t, f.svc.Detach(ctx, domain.NewActor(owner), g.ID, []int{0}), domain.ErrPledged)
		f.oracle.set("pool-main", owner, 1, lockedPos(100))
		assert.ErrorIs(t, f.svc.Transfer(ctx, domain.NewActor(owner), g.ID, other.ID, owner, 1), domain.ErrPledged)
	})

	t.Run("fresh oracle pledge blocks detach without a stored flag", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1)

		pos := expiredPos(100)
		pos.Pledged = true
		f.oracle.set("pool-main", owner, 1, pos)
		assert.ErrorIs(t, f.svc.Detach(ctx, domain.NewActor(owner), g.ID, []int{0}), domain.ErrPledged)
	})

	t.Run("unknown attachment", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		err := f.svc.ReportPledged(ctx, domain.NewActor(owner), g.ID, owner, 9)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("cancel is terminal and one-way", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		require.NoError(t, f.svc.Cancel(ctx, domain.NewActor(owner), g.ID))

		loaded, err := f.svc.GetGoal(ctx, g.ID)
		require.NoError(t, err)
		assert.True(t, loaded.Cancelled)
		assert.False(t, loaded.Completed)

		assert.ErrorIs(t, f.svc.Cancel(ctx, domain.NewActor(owner), g.ID), domain.ErrAlreadyTerminal)
		assert.ErrorIs(t, f.svc.Finalize(ctx, domain.NewActor(uuid.New(), domain.CapabilityKeeper), g.ID), domain.ErrAlreadyTerminal)

		f.oracle.set("pool-main", owner, 1, lockedPos(100))
		assert.ErrorIs(t, f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1}), domain.ErrAlreadyTerminal)
	})

	t.Run("pledged attachment refuses cancellation", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.attach(t, g, owner, 1)

		pos := lockedPos(100)
		pos.Pledged = true
		f.oracle.set("pool-main", owner, 1, pos)

		assert.ErrorIs(t, f.svc.Cancel(ctx, domain.NewActor(owner), g.ID), domain.ErrHasPledgedAttachments)
	})

	t.Run("only the creator or privileged actors may cancel", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		assert.ErrorIs(t, f.svc.Cancel(ctx, domain.NewActor(uuid.New()), g.ID), shared.ErrNotAuthorized)
		assert.NoError(t, f.svc.Cancel(ctx, domain.NewActor(uuid.New(), domain.CapabilityAdmin), g.ID))
	})
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	keeper := domain.NewActor(uuid.New(), domain.CapabilityKeeper)

	t.Run("below target is refused", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		for _, id := range []uint64{1, 2, 3} {
			f.oracle.set("pool-main", owner, id, lockedPos(300))
		}
		require.NoError(t, f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1, 2, 3}))

		assert.ErrorIs(t, f.svc.Finalize(ctx, keeper, g.ID), domain.ErrNotYetComplete)
		assert.Empty(t, f.sink.completedCalls())
	})

	t.Run("reaching the target completes the goal", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		for _, id := range []uint64{1, 2} {
			f.oracle.set("pool-main", owner, id, lockedPos(500))
		}
		require.NoError(t, f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1, 2}))

		require.NoError(t, f.svc.Finalize(ctx, keeper, g.ID))

		loaded, err := f.svc.GetGoal(ctx, g.ID)
		require.NoError(t, err)
		assert.True(t, loaded.Completed)

		calls := f.sink.completedCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, owner, calls[0].owner)
		assert.Equal(t, g.ID, calls[0].goalID)
		assert.True(t, calls[0].amount.Equal(decimal.NewFromInt(1000)))
		assert.Len(t, f.events.ofType(domain.EventTypeGoalCompleted), 1)

		// Terminal states are mutually exclusive.
		assert.ErrorIs(t, f.svc.Cancel(ctx, domain.NewActor(owner), g.ID), domain.ErrAlreadyTerminal)
	})

	t.Run("needs keeper or admin", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		assert.ErrorIs(t, f.svc.Finalize(ctx, domain.NewActor(owner), g.ID), shared.ErrNotAuthorized)
	})

	t.Run("default goals cannot be finalized", func(t *testing.T) {
		f := newFixture(t)
		g, err := f.svc.CreateDefaultGoal(ctx, domain.NewActor(owner), owner, "pool-main")
		require.NoError(t, err)
		assert.Error(t, f.svc.Finalize(ctx, keeper, g.ID))
	})
}

func TestScoreSinkIsBestEffort(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("failing sink does not fail attach", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		f.sink.setFail(true)
		f.oracle.set("pool-main", owner, 1, lockedPos(100))
		assert.NoError(t, f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1}))
	})

	t.Run("failing sink does not fail finalize", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 100)
		f.attach(t, g, owner, 1)
		f.sink.setFail(true)
		assert.NoError(t, f.svc.Finalize(ctx, domain.NewActor(uuid.New(), domain.CapabilityKeeper), g.ID))
	})

	t.Run("no sink configured is fine", func(t *testing.T) {
		f := newFixture(t)
		f.svc.SetScoreSink(nil)
		g := f.targetedGoal(t, owner, "pool-main", 100)
		f.attach(t, g, owner, 1)
		assert.NoError(t, f.svc.Finalize(ctx, domain.NewActor(uuid.New(), domain.CapabilityAdmin), g.ID))
	})
}

func TestAutoEnroll(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	notifierID := uuid.New()
	notifier := domain.NewActor(notifierID, domain.CapabilityNotifier)

	whitelisted := func(t *testing.T) *fixture {
		t.Helper()
		f := newFixture(t)
		require.NoError(t, f.controls.SetTrustedNotifier(ctx, notifierID, true))
		return f
	}

	t.Run("creates the default goal lazily and attaches", func(t *testing.T) {
		f := whitelisted(t)
		// Unsolicited deposits arrive past their lock; the default goal takes
		// them anyway.
		f.oracle.set("pool-main", user, 1, expiredPos(250))
		require.NoError(t, f.svc.AutoEnroll(ctx, notifier, user, "pool-main", 1))

		g, err := f.svc.DefaultGoal(ctx, "pool-main", user)
		require.NoError(t, err)
		assert.Equal(t, domain.KindDefault, g.Kind)
		assert.Equal(t, 1, g.Len())

		// Second enrollment reuses the same goal.
		f.oracle.set("pool-main", user, 2, expiredPos(100))
		require.NoError(t, f.svc.AutoEnroll(ctx, notifier, user, "pool-main", 2))
		g, err = f.svc.DefaultGoal(ctx, "pool-main", user)
		require.NoError(t, err)
		assert.Equal(t, 2, g.Len())
	})

	t.Run("requires the notifier capability", func(t *testing.T) {
		f := whitelisted(t)
		f.oracle.set("pool-main", user, 1, expiredPos(100))
		err := f.svc.AutoEnroll(ctx, domain.NewActor(user), user, "pool-main", 1)
		assert.ErrorIs(t, err, shared.ErrNotAuthorized)
	})

	t.Run("requires the whitelist entry", func(t *testing.T) {
		f := newFixture(t)
		f.oracle.set("pool-main", user, 1, expiredPos(100))
		err := f.svc.AutoEnroll(ctx, notifier, user, "pool-main", 1)
		assert.ErrorIs(t, err, shared.ErrNotAuthorized)
	})

	t.Run("creation pause does not block lazy default creation", func(t *testing.T) {
		f := whitelisted(t)
		f.controls.set(func(c *Controls) { c.CreationPaused = true })
		f.oracle.set("pool-main", user, 1, expiredPos(100))
		assert.NoError(t, f.svc.AutoEnroll(ctx, notifier, user, "pool-main", 1))
	})

	t.Run("attachment pause blocks enrollment", func(t *testing.T) {
		f := whitelisted(t)
		f.controls.set(func(c *Controls) { c.AttachmentsPaused = true })
		f.oracle.set("pool-main", user, 1, expiredPos(100))
		err := f.svc.AutoEnroll(ctx, notifier, user, "pool-main", 1)
		assert.ErrorIs(t, err, domain.ErrAttachmentsPaused)
	})

	t.Run("concurrent enrollments share one default goal", func(t *testing.T) {
		f := whitelisted(t)
		const n = 8
		for i := uint64(1); i <= n; i++ {
			f.oracle.set("pool-main", user, i, expiredPos(50))
		}

		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = f.svc.AutoEnroll(ctx, notifier, user, "pool-main", uint64(i+1))
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			assert.NoError(t, err, "enrollment %d", i+1)
		}
		g, err := f.svc.DefaultGoal(ctx, "pool-main", user)
		require.NoError(t, err)
		assert.Equal(t, n, g.Len())
	})
}

// stubVerifier resolves one known token to a fixed actor.
type stubVerifier struct {
	token string
	actor domain.Actor
}

func (v *stubVerifier) VerifyActorToken(ctx context.Context, token string) (domain.Actor, error) {
	if token != v.token {
		return domain.Actor{}, shared.ErrNotAuthorized
	}
	return v.actor, nil
}

func TestAutoEnrollWithToken(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	notifierID := uuid.New()

	t.Run("valid token enrolls", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.controls.SetTrustedNotifier(ctx, notifierID, true))
		f.svc.SetActorTokenVerifier(&stubVerifier{
			token: "good",
			actor: domain.NewActor(notifierID, domain.CapabilityNotifier),
		})
		f.oracle.set("pool-main", user, 1, expiredPos(100))

		require.NoError(t, f.svc.AutoEnrollWithToken(ctx, "good", user, "pool-main", 1))
		assert.ErrorIs(t, f.svc.AutoEnrollWithToken(ctx, "bad", user, "pool-main", 1), shared.ErrNotAuthorized)
	})

	t.Run("no verifier configured", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.AutoEnrollWithToken(ctx, "good", user, "pool-main", 1)
		assert.ErrorIs(t, err, shared.ErrNotAuthorized)
	})
}
