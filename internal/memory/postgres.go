package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	model "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

// DBPool abstracts pgxpool.Pool so the store can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	sqlSchema = `
CREATE TABLE IF NOT EXISTS session_turns (
    id         BIGSERIAL PRIMARY KEY,
    session_id TEXT        NOT NULL,
    role       TEXT        NOT NULL,
    content    TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS session_turns_session_idx ON session_turns (session_id, id);
CREATE TABLE IF NOT EXISTS session_actions (
    id             BIGSERIAL PRIMARY KEY,
    session_id     TEXT        NOT NULL,
    action         TEXT        NOT NULL,
    succeeded      BOOLEAN     NOT NULL,
    outcome        JSONB       NOT NULL,
    page_url       TEXT,
    browser_action JSONB       NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS session_actions_session_idx ON session_actions (session_id, id);`

	sqlInsertTurn = `INSERT INTO session_turns (session_id, role, content, created_at) VALUES ($1, $2, $3, $4)`

	sqlInsertAction = `INSERT INTO session_actions (session_id, action, succeeded, outcome, page_url, browser_action, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	sqlSelectTurns = `SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at FROM session_turns
    WHERE session_id = $1 ORDER BY id DESC LIMIT $2
) recent ORDER BY id ASC`

	sqlSelectActions = `SELECT browser_action, COALESCE(page_url, '') FROM (
    SELECT id, browser_action, page_url FROM session_actions
    WHERE session_id = $1 ORDER BY id DESC LIMIT $2
) recent ORDER BY id ASC`
)

// Postgres stores session history in PostgreSQL.
type Postgres struct {
	pool  DBPool
	limit int
	log   *logger.Logger
}

var _ Sink = (*Postgres)(nil)

// NewPostgres verifies the connection and ensures the schema exists.
func NewPostgres(ctx context.Context, pool DBPool, limit int, log *logger.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure memory schema: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}
	return &Postgres{pool: pool, limit: limit, log: log}, nil
}

func (p *Postgres) RecordAction(ctx context.Context, rec ActionRecord) error {
	outcome, err := json.Marshal(rec.Outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	action, err := json.Marshal(rec.BrowserAction)
	if err != nil {
		return fmt.Errorf("encode browser action: %w", err)
	}
	if _, err := p.pool.Exec(ctx, sqlInsertAction,
		rec.SessionID, string(rec.Action), rec.Succeeded, outcome, rec.PageURL, action, rec.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (p *Postgres) RecordTurn(ctx context.Context, sessionID string, role model.Role, content string) error {
	if _, err := p.pool.Exec(ctx, sqlInsertTurn, sessionID, string(role), content, nowUTC()); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (p *Postgres) Context(ctx context.Context, sessionID string) (*model.SessionContext, error) {
	sc := model.NewSessionContext(sessionID)

	rows, err := p.pool.Query(ctx, sqlSelectTurns, sessionID, p.limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			turn model.ConversationTurn
			role string
		)
		if err := rows.Scan(&role, &turn.Content, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = model.Role(role)
		sc.ConversationHistory = append(sc.ConversationHistory, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	actions, err := p.pool.Query(ctx, sqlSelectActions, sessionID, p.limit)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer actions.Close()
	for actions.Next() {
		var (
			raw     []byte
			pageURL string
			a       model.BrowserAction
		)
		if err := actions.Scan(&raw, &pageURL); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decode action: %w", err)
		}
		sc.AddAction(a, pageURL)
	}
	if err := actions.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return sc, nil
}
