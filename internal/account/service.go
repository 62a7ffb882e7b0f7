package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/account/entity"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// CreateUserInput is the payload for a plain account. UserType defaults to student.
type CreateUserInput struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	Email    *string         `json:"email"`
	Phone    *string         `json:"phone"`
	UserType entity.UserType `json:"user_type"`
}

func (in CreateUserInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Password, validation.Required),
		validation.Field(&in.UserType, validation.In(entity.UserTypeStudent, entity.UserTypeTeacher, entity.UserTypeAdmin).
			Error("must be one of: student, teacher, admin")),
	)
}

// CreateAdminInput is the payload for an admin account. RoleLevel defaults to admin.
type CreateAdminInput struct {
	Username    string           `json:"username"`
	Password    string           `json:"password"`
	Email       *string          `json:"email"`
	Phone       *string          `json:"phone"`
	RealName    *string          `json:"real_name"`
	Department  *string          `json:"department"`
	RoleLevel   entity.RoleLevel `json:"role_level"`
	Permissions []string         `json:"permissions"`
}

func (in CreateAdminInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Password, validation.Required),
		validation.Field(&in.RoleLevel, roleLevelRule),
		validation.Field(&in.Permissions, permissionTokensRule),
	)
}

// UpdateUserInput holds the fields a caller may change; nil means unchanged.
type UpdateUserInput struct {
	Username *string          `json:"username"`
	Email    *string          `json:"email"`
	Phone    *string          `json:"phone"`
	UserType *entity.UserType `json:"user_type"`
}

func (in UpdateUserInput) empty() bool {
	return in.Username == nil && in.Email == nil && in.Phone == nil && in.UserType == nil
}

func (in UpdateUserInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&in.UserType, validation.NilOrNotEmpty,
			validation.In(entity.UserTypeStudent, entity.UserTypeTeacher, entity.UserTypeAdmin).
				Error("must be one of: student, teacher, admin")),
	)
}

// UpdateAdminInput holds the admin fields a caller may change; nil means unchanged.
// A non-nil empty Permissions clears the set.
type UpdateAdminInput struct {
	Username    *string           `json:"username"`
	Email       *string           `json:"email"`
	Phone       *string           `json:"phone"`
	RealName    *string           `json:"real_name"`
	Department  *string           `json:"department"`
	RoleLevel   *entity.RoleLevel `json:"role_level"`
	Permissions []string          `json:"permissions"`
}

func (in UpdateAdminInput) empty() bool {
	return in.Username == nil && in.Email == nil && in.Phone == nil && in.RealName == nil &&
		in.Department == nil && in.RoleLevel == nil && in.Permissions == nil
}

func (in UpdateAdminInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&in.RoleLevel, validation.NilOrNotEmpty, roleLevelRule),
		validation.Field(&in.Permissions, permissionTokensRule),
	)
}

var roleLevelRule = validation.In(entity.RoleLevelAdmin, entity.RoleLevelSuperAdmin).
	Error("must be one of: admin, super_admin")

// permissionTokensRule rejects tokens that would split apart in the comma-joined storage form.
var permissionTokensRule = validation.By(func(value interface{}) error {
	tokens, _ := value.([]string)
	for _, t := range tokens {
		if strings.Contains(t, entity.PermissionSeparator) {
			return fmt.Errorf("token %q must not contain %q", t, entity.PermissionSeparator)
		}
	}
	return nil
})

var userTypeFilterRule = validation.In(entity.UserTypeStudent, entity.UserTypeTeacher, entity.UserTypeAdmin, entity.UserTypeSuperAdmin).
	Error("must be one of: student, teacher, admin, super_admin")

// AccountStatus is the lightweight status view of an account.
type AccountStatus struct {
	UserID    int64           `json:"user_id"`
	Username  string          `json:"username"`
	UserType  entity.UserType `json:"user_type"`
	IsActive  bool            `json:"is_active"`
	LastLogin *time.Time      `json:"last_login"`
	Status    string          `json:"status"`
}

// Service orchestrates the account lifecycle: create, update, password changes,
// soft delete and restore.
type Service struct {
	store  Store
	hasher PasswordHasher
	logger *zap.SugaredLogger

	Now func() time.Time
}

func NewService(store Store, hasher PasswordHasher, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = SHA256Hasher{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, hasher: hasher, logger: logger, Now: time.Now}
}

// CreateUser creates a student, teacher or admin account. super_admin is reachable only via CreateAdmin.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*entity.Account, error) {
	if err := in.Validate(); err != nil {
		return nil, badRequest("%s", err.Error())
	}
	if in.UserType == "" {
		in.UserType = entity.UserTypeStudent
	}
	if err := s.checkUnique(ctx, &in.Username, in.Email, in.Phone, 0); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, infra("hash password", err)
	}
	now := s.Now()
	a := &entity.Account{
		Username:     in.Username,
		PasswordHash: hash,
		Email:        present(in.Email),
		Phone:        present(in.Phone),
		UserType:     in.UserType,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if a.IsAdmin() {
		lvl := entity.RoleLevelAdmin
		a.RoleLevel = &lvl
		a.Permissions = entity.Permissions{}
	}
	return s.insert(ctx, a)
}

// CreateAdmin creates a user_type=admin account with its admin-only fields.
func (s *Service) CreateAdmin(ctx context.Context, in CreateAdminInput) (*entity.Account, error) {
	if err := in.Validate(); err != nil {
		return nil, badRequest("%s", err.Error())
	}
	if in.RoleLevel == "" {
		in.RoleLevel = entity.RoleLevelAdmin
	}
	if err := s.checkUnique(ctx, &in.Username, in.Email, in.Phone, 0); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, infra("hash password", err)
	}
	now := s.Now()
	lvl := in.RoleLevel
	a := &entity.Account{
		Username:     in.Username,
		PasswordHash: hash,
		Email:        present(in.Email),
		Phone:        present(in.Phone),
		UserType:     entity.UserTypeAdmin,
		IsActive:     true,
		RealName:     in.RealName,
		Department:   in.Department,
		RoleLevel:    &lvl,
		Permissions:  entity.NewPermissions(in.Permissions...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s.insert(ctx, a)
}

func (s *Service) insert(ctx context.Context, a *entity.Account) (*entity.Account, error) {
	id, err := s.store.Insert(ctx, a)
	if err != nil {
		return nil, storeErr("create account", "account", err)
	}
	a.ID = id
	s.logger.Infow("account created", "user_id", id, "user_type", a.UserType)
	return a, nil
}

// UpdateUser applies the provided fields after validating every one of them.
func (s *Service) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*entity.Account, error) {
	if in.empty() {
		return nil, badRequest("no fields to update")
	}
	if err := in.Validate(); err != nil {
		return nil, badRequest("%s", err.Error())
	}
	current, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, in.Username, in.Email, in.Phone, id); err != nil {
		return nil, err
	}
	p := entity.AccountPatch{
		Username:  in.Username,
		Email:     in.Email,
		Phone:     in.Phone,
		UserType:  in.UserType,
		UpdatedAt: s.Now(),
	}
	if in.UserType != nil {
		switch {
		case *in.UserType == entity.UserTypeAdmin && !current.IsAdmin():
			lvl := entity.RoleLevelAdmin
			perms := entity.Permissions{}
			p.RoleLevel = &lvl
			p.Permissions = &perms
		case *in.UserType != entity.UserTypeAdmin && current.IsAdmin():
			p.ClearAdmin = true
		}
	}
	return s.update(ctx, id, p, "user")
}

// UpdateAdmin is UpdateUser for admin rows, including the admin-only fields.
func (s *Service) UpdateAdmin(ctx context.Context, id int64, in UpdateAdminInput) (*entity.Account, error) {
	if in.empty() {
		return nil, badRequest("no fields to update")
	}
	if err := in.Validate(); err != nil {
		return nil, badRequest("%s", err.Error())
	}
	if _, err := s.load(ctx, id, true); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, in.Username, in.Email, in.Phone, id); err != nil {
		return nil, err
	}
	p := entity.AccountPatch{
		Username:   in.Username,
		Email:      in.Email,
		Phone:      in.Phone,
		RealName:   in.RealName,
		Department: in.Department,
		RoleLevel:  in.RoleLevel,
		UpdatedAt:  s.Now(),
	}
	if in.Permissions != nil {
		perms := entity.NewPermissions(in.Permissions...)
		p.Permissions = &perms
	}
	return s.update(ctx, id, p, "admin")
}

func (s *Service) update(ctx context.Context, id int64, p entity.AccountPatch, what string) (*entity.Account, error) {
	if p.IsEmpty() {
		return nil, badRequest("no fields to update")
	}
	a, err := s.store.Update(ctx, id, p)
	if err != nil {
		return nil, storeErr("update account", what, err)
	}
	s.logger.Infow("account updated", "user_id", id)
	return a, nil
}

// ResetPassword overwrites the password without checking the old one.
func (s *Service) ResetPassword(ctx context.Context, id int64, newPassword string) error {
	if newPassword == "" {
		return badRequest("new password is required")
	}
	if _, err := s.load(ctx, id, false); err != nil {
		return err
	}
	return s.setPassword(ctx, id, newPassword, "user")
}

// ChangeAdminPassword replaces an admin's password after verifying the old one.
func (s *Service) ChangeAdminPassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	if newPassword == "" {
		return badRequest("new password is required")
	}
	a, err := s.load(ctx, id, true)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(a.PasswordHash, oldPassword) {
		return badRequest("incorrect old password")
	}
	return s.setPassword(ctx, id, newPassword, "admin")
}

func (s *Service) setPassword(ctx context.Context, id int64, pw, what string) error {
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return infra("hash password", err)
	}
	if _, err := s.store.Update(ctx, id, entity.AccountPatch{PasswordHash: &hash, UpdatedAt: s.Now()}); err != nil {
		return storeErr("update password", what, err)
	}
	s.logger.Infow("password changed", "user_id", id)
	return nil
}

// SoftDelete marks any account inactive.
func (s *Service) SoftDelete(ctx context.Context, id int64) (*entity.Account, error) {
	return s.setActive(ctx, id, false, false)
}

// Restore reactivates any account. Restoring an active account is a no-op success.
func (s *Service) Restore(ctx context.Context, id int64) (*entity.Account, error) {
	return s.setActive(ctx, id, true, false)
}

// SoftDeleteAdmin is SoftDelete restricted to admin rows.
func (s *Service) SoftDeleteAdmin(ctx context.Context, id int64) (*entity.Account, error) {
	return s.setActive(ctx, id, false, true)
}

// RestoreAdmin is Restore restricted to admin rows.
func (s *Service) RestoreAdmin(ctx context.Context, id int64) (*entity.Account, error) {
	return s.setActive(ctx, id, true, true)
}

func (s *Service) setActive(ctx context.Context, id int64, active, adminOnly bool) (*entity.Account, error) {
	a, err := s.load(ctx, id, adminOnly)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	n, err := s.store.SetActive(ctx, id, active, now)
	if err != nil {
		return nil, infra("set active", err)
	}
	if n == 0 {
		return nil, notFound("%s not found", kindName(adminOnly))
	}
	a.IsActive = active
	a.UpdatedAt = now
	s.logger.Infow("account active flag changed", "user_id", id, "is_active", active)
	return a, nil
}

// GetUser returns any account by id, active or not.
func (s *Service) GetUser(ctx context.Context, id int64) (*entity.Account, error) {
	return s.load(ctx, id, false)
}

// GetAdmin returns an admin account by id.
func (s *Service) GetAdmin(ctx context.Context, id int64) (*entity.Account, error) {
	return s.load(ctx, id, true)
}

// Status reports whether an account is active and when it last logged in.
func (s *Service) Status(ctx context.Context, id int64) (*AccountStatus, error) {
	a, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	st := &AccountStatus{
		UserID:    a.ID,
		Username:  a.Username,
		UserType:  a.UserType,
		IsActive:  a.IsActive,
		LastLogin: a.LastLogin,
		Status:    "inactive",
	}
	if a.IsActive {
		st.Status = "active"
	}
	return st, nil
}

// List returns one page of accounts matching f, newest first.
func (s *Service) List(ctx context.Context, f entity.ListFilter, page, pageSize int) (*entity.ListPage, error) {
	if page < 1 {
		return nil, badRequest("page must be >= 1")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, badRequest("page_size must be between 1 and %d", MaxPageSize)
	}
	if err := validation.Validate(f.UserType, userTypeFilterRule); err != nil {
		return nil, badRequest("user_type: %s", err.Error())
	}
	if err := validation.Validate(f.RoleLevel, roleLevelRule); err != nil {
		return nil, badRequest("role_level: %s", err.Error())
	}
	total, items, err := s.store.List(ctx, f, page, pageSize)
	if err != nil {
		return nil, infra("list accounts", err)
	}
	return &entity.ListPage{Total: total, Page: page, PageSize: pageSize, Items: items}, nil
}

// ListAdmins is List restricted to admin rows.
func (s *Service) ListAdmins(ctx context.Context, f entity.ListFilter, page, pageSize int) (*entity.ListPage, error) {
	f.UserType = entity.UserTypeAdmin
	return s.List(ctx, f, page, pageSize)
}

// SeedSuperAdmin creates the first super_admin when no admin account exists yet.
// It reports whether an account was created.
func (s *Service) SeedSuperAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	n, err := s.store.CountByType(ctx, entity.UserTypeAdmin)
	if err != nil {
		return false, infra("count admins", err)
	}
	if n > 0 {
		return false, nil
	}
	if _, err := s.CreateAdmin(ctx, CreateAdminInput{
		Username:  username,
		Password:  password,
		RoleLevel: entity.RoleLevelSuperAdmin,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// load fetches by id; with adminOnly a non-admin row counts as absent.
func (s *Service) load(ctx context.Context, id int64, adminOnly bool) (*entity.Account, error) {
	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("load account", kindName(adminOnly), err)
	}
	if adminOnly && !a.IsAdmin() {
		return nil, notFound("admin not found")
	}
	return a, nil
}

// checkUnique is the fast-path collision check; the store's unique constraints remain authoritative.
// Empty email/phone are treated as absent.
func (s *Service) checkUnique(ctx context.Context, username, email, phone *string, excludeID int64) error {
	if username != nil {
		taken, err := s.store.ExistsByUsername(ctx, *username, excludeID)
		if err != nil {
			return infra("check username", err)
		}
		if taken {
			return conflict("username already exists")
		}
	}
	if email != nil && *email != "" {
		taken, err := s.store.ExistsByEmail(ctx, *email, excludeID)
		if err != nil {
			return infra("check email", err)
		}
		if taken {
			return conflict("email already exists")
		}
	}
	if phone != nil && *phone != "" {
		taken, err := s.store.ExistsByPhone(ctx, *phone, excludeID)
		if err != nil {
			return infra("check phone", err)
		}
		if taken {
			return conflict("phone already exists")
		}
	}
	return nil
}

func kindName(admin bool) string {
	if admin {
		return "admin"
	}
	return "user"
}

// present drops empty optional strings.
func present(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
