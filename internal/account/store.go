package account

import (
	"context"
	"time"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/account/entity"
)

// Store is the account persistence boundary. Lookups return sql.ErrNoRows for absent rows;
// writes colliding with a unique constraint return *repo.DuplicateError.
// repo.AccountRepo is the production implementation.
type Store interface {
	FindByUsername(ctx context.Context, username string) (*entity.Account, error)
	FindByID(ctx context.Context, id int64) (*entity.Account, error)
	ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error)
	ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error)
	ExistsByPhone(ctx context.Context, phone string, excludeID int64) (bool, error)
	Insert(ctx context.Context, a *entity.Account) (int64, error)
	Update(ctx context.Context, id int64, p entity.AccountPatch) (*entity.Account, error)
	List(ctx context.Context, f entity.ListFilter, page, pageSize int) (int, []*entity.Account, error)
	SetActive(ctx context.Context, id int64, active bool, at time.Time) (int64, error)
	// RecordSuccessfulLogin advances last_login and appends the success entry atomically.
	RecordSuccessfulLogin(ctx context.Context, e *entity.LoginLogEntry) error
	CountByType(ctx context.Context, t entity.UserType) (int, error)
}

// Ledger appends login attempts. repo.LoginLogRepo is the production implementation.
type Ledger interface {
	Record(ctx context.Context, e *entity.LoginLogEntry) error
}
