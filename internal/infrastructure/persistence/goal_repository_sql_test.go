package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/goalledger/backend/internal/domain/goal"
)

// newMockGoalRepository creates a GormGoalRepository on a mocked postgres
// connection, for asserting the exact SQL shape of guarded statements.
func newMockGoalRepository(t *testing.T) (*GormGoalRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormGoalRepository(gormDB), mock, mockDB
}

func TestGormGoalRepository_MarkCancelledSQL(t *testing.T) {
	t.Run("guards the transition in one statement", func(t *testing.T) {
		repo, mock, mockDB := newMockGoalRepository(t)
		defer mockDB.Close()
		goalID := uuid.New()

		// The WHERE clause must pin both terminal flags to false so the check
		// and the transition cannot interleave with another writer.
		mock.ExpectExec(`UPDATE "goals" SET .+ WHERE id = \$\d+ AND cancelled = \$\d+ AND completed = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkCancelled(context.Background(), goalID)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows on an existing goal means already terminal", func(t *testing.T) {
		repo, mock, mockDB := newMockGoalRepository(t)
		defer mockDB.Close()
		goalID := uuid.New()
		now := time.Now()

		mock.ExpectExec(`UPDATE "goals" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT \* FROM "goals"`).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "created_at", "updated_at", "version", "creator_id", "pool",
				"kind", "target_date", "cancelled", "completed",
			}).AddRow(goalID, now, now, 1, uuid.New(), "pool-main", "targeted", now, true, false))
		mock.ExpectQuery(`SELECT \* FROM "goal_attachments"`).
			WillReturnRows(sqlmock.NewRows([]string{"goal_id", "position", "owner", "deposit_id", "attached_at", "pledged"}))

		err := repo.MarkCancelled(context.Background(), goalID)
		assert.ErrorIs(t, err, goal.ErrAlreadyTerminal)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormGoalRepository_SetPledgedSQL(t *testing.T) {
	repo, mock, mockDB := newMockGoalRepository(t)
	defer mockDB.Close()
	goalID := uuid.New()
	owner := uuid.New()

	mock.ExpectExec(`UPDATE "goal_attachments" SET "pledged"=\$\d+ WHERE goal_id = \$\d+ AND owner = \$\d+ AND deposit_id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetPledged(context.Background(), goalID, owner, 7))

	// Zero affected rows means the attachment does not exist.
	mock.ExpectExec(`UPDATE "goal_attachments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.Error(t, repo.SetPledged(context.Background(), goalID, owner, 8))

	assert.NoError(t, mock.ExpectationsWereMet())
}
