package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/account/entity"
)

// DuplicateError is returned when a write collides with a unique constraint.
type DuplicateError struct {
	Field string
	Err   error
}

func (e *DuplicateError) Error() string { return e.Field + " already exists" }
func (e *DuplicateError) Unwrap() error { return e.Err }

// AccountRepo provides data access for the users table using sqlx.
type AccountRepo struct {
	db *sqlx.DB
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// The unique constraints are the authoritative uniqueness guarantee; they span active and
// soft-deleted rows alike. NULL email/phone never collide.
func (r *AccountRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  username TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  email TEXT,
  phone TEXT,
  user_type TEXT NOT NULL DEFAULT 'student',
  is_active BOOLEAN NOT NULL DEFAULT true,
  real_name TEXT,
  department TEXT,
  role_level TEXT,
  permissions TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_login TIMESTAMPTZ,
  CONSTRAINT users_username_key UNIQUE (username),
  CONSTRAINT users_email_key UNIQUE (email),
  CONSTRAINT users_phone_key UNIQUE (phone)
);
CREATE INDEX IF NOT EXISTS idx_users_user_type ON users(user_type);
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at DESC, id DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const accountColumns = `id, username, password_hash, email, phone, user_type, is_active,
		real_name, department, role_level, permissions, created_at, updated_at, last_login`

type accountRow struct {
	ID           int64      `db:"id"`
	Username     string     `db:"username"`
	PasswordHash string     `db:"password_hash"`
	Email        *string    `db:"email"`
	Phone        *string    `db:"phone"`
	UserType     string     `db:"user_type"`
	IsActive     bool       `db:"is_active"`
	RealName     *string    `db:"real_name"`
	Department   *string    `db:"department"`
	RoleLevel    *string    `db:"role_level"`
	Permissions  *string    `db:"permissions"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	LastLogin    *time.Time `db:"last_login"`
}

func (row *accountRow) toEntity() *entity.Account {
	a := &entity.Account{
		ID:           row.ID,
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		Email:        row.Email,
		Phone:        row.Phone,
		UserType:     entity.UserType(row.UserType),
		IsActive:     row.IsActive,
		RealName:     row.RealName,
		Department:   row.Department,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin,
	}
	if row.RoleLevel != nil {
		lvl := entity.RoleLevel(*row.RoleLevel)
		a.RoleLevel = &lvl
	}
	if row.Permissions != nil {
		a.Permissions = entity.ParsePermissions(*row.Permissions)
	}
	return a
}

// FindByUsername fetches by username regardless of is_active, or sql.ErrNoRows.
func (r *AccountRepo) FindByUsername(ctx context.Context, username string) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM users WHERE username=$1`
	var row accountRow
	if err := r.db.GetContext(ctx, &row, q, username); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// FindByID fetches a full account row or sql.ErrNoRows.
func (r *AccountRepo) FindByID(ctx context.Context, id int64) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM users WHERE id=$1`
	var row accountRow
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// ExistsByUsername reports whether another row (id != excludeID) holds username.
// Pass excludeID 0 to check against every row.
func (r *AccountRepo) ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error) {
	return r.existsBy(ctx, "username", username, excludeID)
}

func (r *AccountRepo) ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error) {
	return r.existsBy(ctx, "email", email, excludeID)
}

func (r *AccountRepo) ExistsByPhone(ctx context.Context, phone string, excludeID int64) (bool, error) {
	return r.existsBy(ctx, "phone", phone, excludeID)
}

// column is always one of the fixed names above, never caller input.
func (r *AccountRepo) existsBy(ctx context.Context, column, value string, excludeID int64) (bool, error) {
	q := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM users WHERE %s=$1 AND id<>$2)`, column)
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, value, excludeID); err != nil {
		return false, err
	}
	return exists, nil
}

// Insert writes a new account and returns its generated id.
// A unique violation surfaces as *DuplicateError.
func (r *AccountRepo) Insert(ctx context.Context, a *entity.Account) (int64, error) {
	const q = `INSERT INTO users (username, password_hash, email, phone, user_type, is_active,
		real_name, department, role_level, permissions, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`
	var roleLevel, permissions *string
	if a.RoleLevel != nil {
		s := string(*a.RoleLevel)
		roleLevel = &s
	}
	if a.IsAdmin() {
		s := a.Permissions.String()
		permissions = &s
	}
	var id int64
	err := r.db.QueryRowxContext(ctx, q,
		a.Username, a.PasswordHash, nullable(a.Email), nullable(a.Phone), string(a.UserType), a.IsActive,
		a.RealName, a.Department, roleLevel, permissions, a.CreatedAt, a.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, mapWriteErr(err)
	}
	a.ID = id
	return id, nil
}

// Update applies the non-nil columns of p plus updated_at, then reselects the row inside the
// same transaction. Returns sql.ErrNoRows when id is absent.
func (r *AccountRepo) Update(ctx context.Context, id int64, p entity.AccountPatch) (*entity.Account, error) {
	sets, args := patchAssignments(p)
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE users SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, sql.ErrNoRows
	}

	var row accountRow
	if err := tx.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM users WHERE id=$1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func patchAssignments(p entity.AccountPatch) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if p.Username != nil {
		add("username", *p.Username)
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.Email != nil {
		add("email", nullable(p.Email))
	}
	if p.Phone != nil {
		add("phone", nullable(p.Phone))
	}
	if p.UserType != nil {
		add("user_type", string(*p.UserType))
	}
	if p.ClearAdmin {
		sets = append(sets, "real_name=NULL", "department=NULL", "role_level=NULL", "permissions=NULL")
	} else {
		if p.RealName != nil {
			add("real_name", *p.RealName)
		}
		if p.Department != nil {
			add("department", *p.Department)
		}
		if p.RoleLevel != nil {
			add("role_level", string(*p.RoleLevel))
		}
		if p.Permissions != nil {
			add("permissions", p.Permissions.String())
		}
	}
	add("updated_at", p.UpdatedAt)
	return sets, args
}

// List returns the total matching rows and one page ordered newest first.
func (r *AccountRepo) List(ctx context.Context, f entity.ListFilter, page, pageSize int) (int, []*entity.Account, error) {
	where, args := filterClause(f)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, args...); err != nil {
		return 0, nil, err
	}

	offset := (page - 1) * pageSize
	q := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		accountColumns, where, len(args)+1, len(args)+2)
	var rows []accountRow
	if err := r.db.SelectContext(ctx, &rows, q, append(args, pageSize, offset)...); err != nil {
		return 0, nil, err
	}
	items := make([]*entity.Account, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toEntity())
	}
	return total, items, nil
}

func filterClause(f entity.ListFilter) (string, []any) {
	var conds []string
	var args []any
	if f.UserType != "" {
		args = append(args, string(f.UserType))
		conds = append(conds, fmt.Sprintf("user_type=$%d", len(args)))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		conds = append(conds, fmt.Sprintf("is_active=$%d", len(args)))
	}
	if f.Department != "" {
		args = append(args, f.Department)
		conds = append(conds, fmt.Sprintf("department=$%d", len(args)))
	}
	if f.RoleLevel != "" {
		args = append(args, string(f.RoleLevel))
		conds = append(conds, fmt.Sprintf("role_level=$%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(username ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)", n, n, n))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// SetActive flips the soft-delete flag and returns the affected row count.
func (r *AccountRepo) SetActive(ctx context.Context, id int64, active bool, at time.Time) (int64, error) {
	const q = `UPDATE users SET is_active=$2, updated_at=$3 WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, active, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordSuccessfulLogin sets last_login to e.CreatedAt and appends e to login_logs in one
// transaction, so neither write lands without the other.
func (r *AccountRepo) RecordSuccessfulLogin(ctx context.Context, e *entity.LoginLogEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `UPDATE users SET last_login=$2, updated_at=$2 WHERE id=$1`
	if _, err := tx.ExecContext(ctx, q, e.AccountID, e.CreatedAt); err != nil {
		return err
	}
	if err := recordLogin(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

// CountByType counts rows of the given user type, active or not.
func (r *AccountRepo) CountByType(ctx context.Context, t entity.UserType) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE user_type=$1`, string(t)); err != nil {
		return 0, err
	}
	return n, nil
}

// nullable maps absent and empty optional strings to SQL NULL.
func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func mapWriteErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return &DuplicateError{Field: constraintField(pqErr.Constraint), Err: err}
	}
	return err
}

func constraintField(constraint string) string {
	switch constraint {
	case "users_username_key":
		return "username"
	case "users_email_key":
		return "email"
	case "users_phone_key":
		return "phone"
	default:
		return "account"
	}
}
