package entity

import (
	"strings"
	"time"
)

// UserType is the principal kind of an account.
type UserType string

const (
	UserTypeStudent    UserType = "student"
	UserTypeTeacher    UserType = "teacher"
	UserTypeAdmin      UserType = "admin"
	UserTypeSuperAdmin UserType = "super_admin"
)

// RoleLevel is the privilege level carried by admin accounts only.
type RoleLevel string

const (
	RoleLevelAdmin      RoleLevel = "admin"
	RoleLevelSuperAdmin RoleLevel = "super_admin"
)

// Account represents a row in the `users` table.
// Admin-only fields (RealName, Department, RoleLevel, Permissions) are set only when UserType is admin.
type Account struct {
	ID           int64       `json:"id"`
	Username     string      `json:"username"`
	PasswordHash string      `json:"-"`
	Email        *string     `json:"email"`
	Phone        *string     `json:"phone"`
	UserType     UserType    `json:"user_type"`
	IsActive     bool        `json:"is_active"`
	RealName     *string     `json:"real_name,omitempty"`
	Department   *string     `json:"department,omitempty"`
	RoleLevel    *RoleLevel  `json:"role_level,omitempty"`
	Permissions  Permissions `json:"permissions,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	LastLogin    *time.Time  `json:"last_login"`
}

// IsAdmin reports whether the account carries the admin-only record.
func (a *Account) IsAdmin() bool { return a.UserType == UserTypeAdmin }

// Summary returns the projection handed out on successful authentication.
func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{ID: a.ID, Username: a.Username, UserType: a.UserType}
}

// AccountSummary is the minimal view of an authenticated account.
type AccountSummary struct {
	ID       int64    `json:"user_id"`
	Username string   `json:"username"`
	UserType UserType `json:"user_type"`
}

// AccountPatch lists the columns an update touches. Nil fields are left unchanged.
// An empty string for Email or Phone clears the column.
type AccountPatch struct {
	Username     *string
	PasswordHash *string
	Email        *string
	Phone        *string
	UserType     *UserType
	RealName     *string
	Department   *string
	RoleLevel    *RoleLevel
	Permissions  *Permissions
	// ClearAdmin nulls every admin-only column; set when an account leaves user_type admin.
	ClearAdmin bool
	UpdatedAt  time.Time
}

// IsEmpty reports whether no column besides updated_at would change.
func (p AccountPatch) IsEmpty() bool {
	return p.Username == nil && p.PasswordHash == nil && p.Email == nil && p.Phone == nil &&
		p.UserType == nil && p.RealName == nil && p.Department == nil && p.RoleLevel == nil &&
		p.Permissions == nil && !p.ClearAdmin
}

// ListFilter narrows account listings. Zero values mean "no filter"; all set filters are AND-combined.
type ListFilter struct {
	UserType   UserType
	IsActive   *bool
	Department string
	RoleLevel  RoleLevel
	// Search is a substring matched case-insensitively against username, email and phone.
	Search string
}

// ListPage is one page of a filtered listing.
type ListPage struct {
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Items    []*Account `json:"items"`
}

// PermissionSeparator joins tokens in the storage form, so it may not appear inside a token.
const PermissionSeparator = ","

// Permissions is an ordered set of permission tokens.
type Permissions []string

// NewPermissions trims tokens, drops blanks and duplicates, and keeps first-seen order.
func NewPermissions(tokens ...string) Permissions {
	out := make(Permissions, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ParsePermissions decodes the comma-joined storage form.
func ParsePermissions(s string) Permissions {
	if s == "" {
		return Permissions{}
	}
	return NewPermissions(strings.Split(s, PermissionSeparator)...)
}

// String encodes the set into its comma-joined storage form.
func (p Permissions) String() string {
	return strings.Join(NewPermissions(p...), PermissionSeparator)
}

// Contains reports whether token is in the set.
func (p Permissions) Contains(token string) bool {
	for _, t := range p {
		if t == token {
			return true
		}
	}
	return false
}
