package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/voicepilot/internal/memory"
	model "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

func newPostgres(t *testing.T) (*memory.Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS session_turns").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	store, err := memory.NewPostgres(context.Background(), mock, 10, logger.New())
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresPingFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pingErr := errors.New("database unavailable")
	mock.ExpectPing().WillReturnError(pingErr)

	_, err = memory.NewPostgres(context.Background(), mock, 10, logger.New())
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecord(t *testing.T) {
	store, mock := newPostgres(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO session_turns").
		WithArgs("s1", "user", "open example", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.RecordTurn(ctx, "s1", model.RoleUser, "open example"))

	nav := succeeded(model.ActionNavigate, model.ActionResult{"url": "https://example.com"})
	mock.ExpectExec("INSERT INTO session_actions").
		WithArgs("s1", "navigate", true, pgxmock.AnyArg(), "https://example.com", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.RecordAction(ctx, memory.NewActionRecord("s1", nav, "https://example.com")))

	mock.ExpectExec("INSERT INTO session_turns").WillReturnError(errors.New("disk full"))
	assert.Error(t, store.RecordTurn(ctx, "s1", model.RoleAssistant, "ok"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresContext(t *testing.T) {
	store, mock := newPostgres(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	nav := succeeded(model.ActionNavigate, model.ActionResult{"url": "https://example.com"})
	rawNav, err := json.Marshal(nav)
	require.NoError(t, err)
	shot := succeeded(model.ActionScreenshot, model.ActionResult{"screenshot": "data:image/png;base64,"})
	rawShot, err := json.Marshal(shot)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT role, content, created_at").
		WithArgs("s1", 10).
		WillReturnRows(pgxmock.NewRows([]string{"role", "content", "created_at"}).
			AddRow("user", "open example", ts).
			AddRow("assistant", "Parsed intent", ts.Add(time.Second)))
	mock.ExpectQuery("SELECT browser_action").
		WithArgs("s1", 10).
		WillReturnRows(pgxmock.NewRows([]string{"browser_action", "page_url"}).
			AddRow(rawNav, "https://example.com").
			AddRow(rawShot, ""))

	sc, err := store.Context(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sc.ConversationHistory, 2)
	assert.Equal(t, model.RoleAssistant, sc.ConversationHistory[1].Role)
	require.Len(t, sc.RecentActions, 2)
	assert.Equal(t, nav.ID, sc.RecentActions[0].ID)
	require.NotNil(t, sc.LastAction)
	assert.Equal(t, shot.ID, sc.LastAction.ID)
	assert.Equal(t, "https://example.com", sc.CurrentURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresContextWithoutActions(t *testing.T) {
	store, mock := newPostgres(t)

	mock.ExpectQuery("SELECT role, content, created_at").
		WithArgs("s2", 10).
		WillReturnRows(pgxmock.NewRows([]string{"role", "content", "created_at"}))
	mock.ExpectQuery("SELECT browser_action").
		WithArgs("s2", 10).
		WillReturnRows(pgxmock.NewRows([]string{"browser_action", "page_url"}))

	sc, err := store.Context(context.Background(), "s2")
	require.NoError(t, err)
	assert.Empty(t, sc.ConversationHistory)
	assert.Empty(t, sc.RecentActions)
	assert.Nil(t, sc.LastAction)
	assert.NoError(t, mock.ExpectationsWereMet())
}
