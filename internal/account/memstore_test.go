package account

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/account/repo"
)

// memStore is an in-memory Store enforcing the same uniqueness rules as the users table.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*entity.Account

	// err, when set, is returned by every call.
	err error
	// logins receives the entries of successful logins.
	logins Ledger
}

func newMemStore() *memStore {
	return &memStore{rows: map[int64]*entity.Account{}}
}

func clone(a *entity.Account) *entity.Account {
	c := *a
	if a.Permissions != nil {
		c.Permissions = append(entity.Permissions{}, a.Permissions...)
	}
	return &c
}

func (m *memStore) FindByUsername(_ context.Context, username string) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.rows {
		if a.Username == username {
			return clone(a), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) FindByID(_ context.Context, id int64) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return clone(a), nil
}

func (m *memStore) exists(match func(*entity.Account) bool, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	for id, a := range m.rows {
		if id != excludeID && match(a) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ExistsByUsername(_ context.Context, username string, excludeID int64) (bool, error) {
	return m.exists(func(a *entity.Account) bool { return a.Username == username }, excludeID)
}

func (m *memStore) ExistsByEmail(_ context.Context, email string, excludeID int64) (bool, error) {
	return m.exists(func(a *entity.Account) bool { return a.Email != nil && *a.Email == email }, excludeID)
}

func (m *memStore) ExistsByPhone(_ context.Context, phone string, excludeID int64) (bool, error) {
	return m.exists(func(a *entity.Account) bool { return a.Phone != nil && *a.Phone == phone }, excludeID)
}

// duplicate reports the first unique column of a that another row already holds. Caller holds mu.
func (m *memStore) duplicate(a *entity.Account) error {
	for id, o := range m.rows {
		if id == a.ID {
			continue
		}
		switch {
		case o.Username == a.Username:
			return &repo.DuplicateError{Field: "username"}
		case a.Email != nil && o.Email != nil && *o.Email == *a.Email:
			return &repo.DuplicateError{Field: "email"}
		case a.Phone != nil && o.Phone != nil && *o.Phone == *a.Phone:
			return &repo.DuplicateError{Field: "phone"}
		}
	}
	return nil
}

func (m *memStore) Insert(_ context.Context, a *entity.Account) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	c := clone(a)
	c.ID = 0
	if err := m.duplicate(c); err != nil {
		return 0, err
	}
	m.nextID++
	c.ID = m.nextID
	m.rows[c.ID] = c
	return c.ID, nil
}

func (m *memStore) Update(_ context.Context, id int64, p entity.AccountPatch) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	cur, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := clone(cur)
	if p.Username != nil {
		c.Username = *p.Username
	}
	if p.PasswordHash != nil {
		c.PasswordHash = *p.PasswordHash
	}
	if p.Email != nil {
		c.Email = optional(*p.Email)
	}
	if p.Phone != nil {
		c.Phone = optional(*p.Phone)
	}
	if p.UserType != nil {
		c.UserType = *p.UserType
	}
	if p.ClearAdmin {
		c.RealName, c.Department, c.RoleLevel, c.Permissions = nil, nil, nil, nil
	} else {
		if p.RealName != nil {
			c.RealName = p.RealName
		}
		if p.Department != nil {
			c.Department = p.Department
		}
		if p.RoleLevel != nil {
			c.RoleLevel = p.RoleLevel
		}
		if p.Permissions != nil {
			c.Permissions = *p.Permissions
		}
	}
	c.UpdatedAt = p.UpdatedAt
	if err := m.duplicate(c); err != nil {
		return nil, err
	}
	m.rows[id] = c
	return clone(c), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (m *memStore) List(_ context.Context, f entity.ListFilter, page, pageSize int) (int, []*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, nil, m.err
	}
	var matched []*entity.Account
	for _, a := range m.rows {
		if f.UserType != "" && a.UserType != f.UserType {
			continue
		}
		if f.IsActive != nil && a.IsActive != *f.IsActive {
			continue
		}
		if f.Department != "" && (a.Department == nil || *a.Department != f.Department) {
			continue
		}
		if f.RoleLevel != "" && (a.RoleLevel == nil || *a.RoleLevel != f.RoleLevel) {
			continue
		}
		if f.Search != "" && !searchMatches(a, f.Search) {
			continue
		}
		matched = append(matched, clone(a))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return len(matched), []*entity.Account{}, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return len(matched), matched[start:end], nil
}

func searchMatches(a *entity.Account, q string) bool {
	q = strings.ToLower(q)
	if strings.Contains(strings.ToLower(a.Username), q) {
		return true
	}
	if a.Email != nil && strings.Contains(strings.ToLower(*a.Email), q) {
		return true
	}
	return a.Phone != nil && strings.Contains(strings.ToLower(*a.Phone), q)
}

func (m *memStore) SetActive(_ context.Context, id int64, active bool, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	a, ok := m.rows[id]
	if !ok {
		return 0, nil
	}
	a.IsActive = active
	a.UpdatedAt = at
	return 1, nil
}

// RecordSuccessfulLogin writes the entry to logins first and only then moves last_login,
// matching the all-or-nothing transaction of the SQL store.
func (m *memStore) RecordSuccessfulLogin(ctx context.Context, e *entity.LoginLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.logins != nil {
		if err := m.logins.Record(ctx, e); err != nil {
			return err
		}
	}
	if a, ok := m.rows[e.AccountID]; ok {
		t := e.CreatedAt
		a.LastLogin = &t
		a.UpdatedAt = e.CreatedAt
	}
	return nil
}

func (m *memStore) CountByType(_ context.Context, t entity.UserType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, a := range m.rows {
		if a.UserType == t {
			n++
		}
	}
	return n, nil
}

// get returns the stored row without cloning so tests can inspect it.
func (m *memStore) get(id int64) *entity.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

// mockLedger records login attempts through testify/mock.
type mockLedger struct {
	mock.Mock
}

func (l *mockLedger) Record(ctx context.Context, e *entity.LoginLogEntry) error {
	args := l.Called(ctx, e)
	return args.Error(0)
}

// memLedger keeps every entry in order.
type memLedger struct {
	mu      sync.Mutex
	entries []*entity.LoginLogEntry
}

func (l *memLedger) Record(_ context.Context, e *entity.LoginLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = int64(len(l.entries) + 1)
	c := *e
	l.entries = append(l.entries, &c)
	return nil
}

func (l *memLedger) all() []*entity.LoginLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*entity.LoginLogEntry(nil), l.entries...)
}

// clock returns successive instants one second apart.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func strPtr(s string) *string { return &s }
