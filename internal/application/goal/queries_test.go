package goal

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/goalledger/backend/internal/domain/goal"
	"github.com/goalledger/backend/internal/domain/shared"
)

func TestProgress(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	setup := func(t *testing.T) (*fixture, *domain.Goal) {
		t.Helper()
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 1000)
		for i, value := range []int64{100, 200, 300} {
			f.oracle.set("pool-main", owner, uint64(i+1), lockedPos(value))
		}
		require.NoError(t, f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1, 2, 3}))
		return f, g
	}

	t.Run("pages sum oracle values", func(t *testing.T) {
		f, g := setup(t)

		res, err := f.svc.Progress(ctx, g.ID, 0, 2)
		require.NoError(t, err)
		assert.True(t, res.TotalValue.Equal(decimal.NewFromInt(300)))
		assert.Equal(t, int64(3000), res.PercentBps)

		// End past the sequence clamps.
		res, err = f.svc.Progress(ctx, g.ID, 1, 10)
		require.NoError(t, err)
		assert.True(t, res.TotalValue.Equal(decimal.NewFromInt(500)))
		assert.Equal(t, int64(5000), res.PercentBps)
	})

	t.Run("start past the sequence is empty", func(t *testing.T) {
		f, g := setup(t)
		res, err := f.svc.Progress(ctx, g.ID, 7, 9)
		require.NoError(t, err)
		assert.True(t, res.TotalValue.IsZero())
		assert.Zero(t, res.PercentBps)
	})

	t.Run("invalid ranges are rejected", func(t *testing.T) {
		f, g := setup(t)
		_, err := f.svc.Progress(ctx, g.ID, -1, 2)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		_, err = f.svc.Progress(ctx, g.ID, 3, 1)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("full progress covers the whole sequence", func(t *testing.T) {
		f, g := setup(t)
		res, err := f.svc.FullProgress(ctx, g.ID)
		require.NoError(t, err)
		assert.True(t, res.TotalValue.Equal(decimal.NewFromInt(600)))
		assert.Equal(t, int64(6000), res.PercentBps)
	})

	t.Run("percent floors to basis points", func(t *testing.T) {
		f := newFixture(t)
		g := f.targetedGoal(t, owner, "pool-main", 3)
		f.oracle.set("pool-main", owner, 1, lockedPos(1))
		require.NoError(t, f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1}))

		res, err := f.svc.FullProgress(ctx, g.ID)
		require.NoError(t, err)
		// 1/3 of the target is 3333.33... bps, floored.
		assert.Equal(t, int64(3333), res.PercentBps)
	})

	t.Run("default goals report value but no percent", func(t *testing.T) {
		f := newFixture(t)
		g, err := f.svc.CreateDefaultGoal(ctx, domain.NewActor(owner), owner, "pool-main")
		require.NoError(t, err)
		f.oracle.set("pool-main", owner, 1, expiredPos(400))
		require.NoError(t, f.svc.Attach(ctx, domain.NewActor(owner), g.ID, owner, []uint64{1}))

		res, err := f.svc.FullProgress(ctx, g.ID)
		require.NoError(t, err)
		assert.True(t, res.TotalValue.Equal(decimal.NewFromInt(400)))
		assert.Zero(t, res.PercentBps)
	})

	t.Run("unknown goal", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.FullProgress(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestDepositGoalLookup(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	f := newFixture(t)
	g := f.targetedGoal(t, owner, "pool-main", 1000)
	f.attach(t, g, owner, 1)

	claimed, err := f.svc.DepositGoal(ctx, "pool-main", owner, 1)
	require.NoError(t, err)
	assert.Equal(t, g.ID, claimed)

	// Same deposit id under another owner or pool is unclaimed.
	_, err = f.svc.DepositGoal(ctx, "pool-main", uuid.New(), 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.DepositGoal(ctx, "pool-other", owner, 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAttachmentQueries(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	f := newFixture(t)
	g := f.targetedGoal(t, owner, "pool-main", 1000)
	f.attach(t, g, owner, 10, 20)

	n, err := f.svc.AttachmentCount(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	att, err := f.svc.AttachmentAt(ctx, g.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), att.DepositID)

	_, err = f.svc.AttachmentAt(ctx, g.ID, 2)
	assert.Error(t, err)
}
