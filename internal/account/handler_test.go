package account

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	store  *memStore
	ledger *memLedger
	mux    http.Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store := newMemStore()
	ledger := &memLedger{}
	store.logins = ledger
	clk := newClock()
	svc := NewService(store, nil, nil)
	svc.Now = clk.Now
	v := NewVerifier(store, ledger, nil, nil)
	v.Now = clk.Now
	r := chi.NewRouter()
	NewHandler(svc, v, svc.logger).Mount(r)
	return &handlerFixture{store: store, ledger: ledger, mux: r}
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHandlerUserLifecycle(t *testing.T) {
	f := newHandlerFixture(t)

	rec, body := f.do(t, http.MethodPost, "/users", `{"username":"u1","password":"pw","email":"a@x.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "student", body["user_type"])
	assert.NotContains(t, body, "password_hash")
	id := int64(body["id"].(float64))

	rec, body = f.do(t, http.MethodPost, "/users", `{"username":"u2","password":"pw","email":"a@x.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email already exists", body["error"])

	rec, _ = f.do(t, http.MethodPut, "/users/1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodPut, "/users/1", `{"user_type":"teacher"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "teacher", body["user_type"])

	rec, body = f.do(t, http.MethodDelete, "/users/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["is_active"])
	assert.False(t, f.store.get(id).IsActive)

	rec, body = f.do(t, http.MethodPost, "/users/1/restore", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["is_active"])

	rec, _ = f.do(t, http.MethodGet, "/users/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/users/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerLogin(t *testing.T) {
	f := newHandlerFixture(t)
	rec, _ := f.do(t, http.MethodPost, "/admin", `{"username":"adm1","password":"p@ss","role_level":"admin","permissions":["a","b"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := f.do(t, http.MethodPost, "/auth/login", `{"username":"adm1","password":"p@ss"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "admin", body["user_type"])
	assert.NotContains(t, body, "Status")

	rec, wrong := f.do(t, http.MethodPost, "/auth/login", `{"username":"adm1","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, unknown := f.do(t, http.MethodPost, "/auth/login", `{"username":"ghost","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, wrong, unknown)

	entries := f.ledger.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "handler-test", entries[0].UserAgent)
	assert.Equal(t, "192.0.2.1", entries[0].IP)

	rec, _ = f.do(t, http.MethodPost, "/auth/login", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerVerifyStatus(t *testing.T) {
	f := newHandlerFixture(t)
	f.do(t, http.MethodPost, "/users", `{"username":"u1","password":"pw"}`)
	f.do(t, http.MethodPost, "/auth/login", `{"username":"u1","password":"pw"}`)

	rec, body := f.do(t, http.MethodGet, "/auth/verify?user_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", body["status"])
	assert.NotNil(t, body["last_login"])

	rec, _ = f.do(t, http.MethodGet, "/auth/verify", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAdminRoutes(t *testing.T) {
	f := newHandlerFixture(t)
	f.do(t, http.MethodPost, "/users", `{"username":"u1","password":"pw"}`)
	rec, _ := f.do(t, http.MethodPost, "/admin", `{"username":"adm","password":"old","department":"ops"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/admin/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := f.do(t, http.MethodGet, "/admin?department=ops", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])

	rec, _ = f.do(t, http.MethodPut, "/admin/2/password", `{"old_password":"bad","new_password":"new"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodPut, "/admin/2/password", `{"old_password":"old","new_password":"new"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = f.do(t, http.MethodPut, "/admin/2", `{"role_level":"super_admin"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "super_admin", body["role_level"])

	rec, _ = f.do(t, http.MethodDelete, "/admin/2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/admin/2/restore", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerListParameters(t *testing.T) {
	f := newHandlerFixture(t)
	for _, name := range []string{"a", "b", "c"} {
		f.do(t, http.MethodPost, "/users", `{"username":"`+name+`","password":"pw"}`)
	}

	rec, body := f.do(t, http.MethodGet, "/users?page=1&page_size=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["total"])
	assert.Len(t, body["items"], 2)

	for _, q := range []string{"page=0", "page_size=101", "page=x", "is_active=maybe", "user_type=janitor"} {
		rec, _ = f.do(t, http.MethodGet, "/users?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHandlerInternalErrorIsGeneric(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.err = assert.AnError

	rec, body := f.do(t, http.MethodGet, "/users/1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body["error"])

	rec, body = f.do(t, http.MethodPost, "/auth/login", `{"username":"u","password":"p"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgInternal, body["message"])
}
