package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/account/entity"
)

// NOTE: user_id is a plain reference without a foreign key; log retention is independent
// of the account row.

type LoginLogRepo struct {
	db *sqlx.DB
}

func NewLoginLogRepo(db *sqlx.DB) *LoginLogRepo {
	return &LoginLogRepo{db: db}
}

func (r *LoginLogRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS login_logs (
  id BIGSERIAL PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  user_id BIGINT NOT NULL,
  login_status TEXT NOT NULL,
  failure_reason TEXT,
  login_ip TEXT NOT NULL DEFAULT '',
  user_agent TEXT NOT NULL DEFAULT '',
  login_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_login_logs_user_id ON login_logs(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const insertLoginLog = `INSERT INTO login_logs (event_id, user_id, login_status, failure_reason, login_ip, user_agent, login_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

// Record appends one entry and sets its generated id. Entries are never updated or deleted.
func (r *LoginLogRepo) Record(ctx context.Context, e *entity.LoginLogEntry) error {
	return recordLogin(ctx, r.db, e)
}

// recordLogin inserts e through q, which is either the pool or an open transaction.
func recordLogin(ctx context.Context, q sqlx.QueryerContext, e *entity.LoginLogEntry) error {
	row := q.QueryRowxContext(ctx, insertLoginLog,
		e.EventID, e.AccountID, string(e.Outcome), e.FailureReason, e.IP, e.UserAgent, e.CreatedAt)
	return row.Scan(&e.ID)
}
