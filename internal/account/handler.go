package account

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/account/entity"
)

// Handler exposes HTTP endpoints for authentication, user and admin management.
type Handler struct {
	svc      *Service
	verifier *Verifier
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, verifier *Verifier, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, verifier: verifier, logger: logger}
}

// Mount registers the account routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Get("/verify", h.VerifyStatus)
		r.Get("/profile/{id}", h.GetUser)
	})
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/", h.ListUsers)
		r.Get("/{id}", h.GetUser)
		r.Put("/{id}", h.UpdateUser)
		r.Delete("/{id}", h.DeleteUser)
		r.Post("/{id}/restore", h.RestoreUser)
		r.Post("/{id}/reset-password", h.ResetPassword)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Post("/", h.CreateAdmin)
		r.Get("/", h.ListAdmins)
		r.Get("/{id}", h.GetAdmin)
		r.Put("/{id}", h.UpdateAdmin)
		r.Put("/{id}/password", h.ChangeAdminPassword)
		r.Delete("/{id}", h.DeleteAdmin)
		r.Post("/{id}/restore", h.RestoreAdmin)
	})
}

// LoginRequest login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.verifier.AuthenticateFrom(r.Context(), clientInfo(r), req.Username, req.Password)
	status := http.StatusOK
	switch res.Status {
	case AuthRejected:
		status = http.StatusUnauthorized
	case AuthInternalError:
		status = http.StatusInternalServerError
	}
	h.writeJSON(w, status, res)
}

func (h *Handler) VerifyStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid user_id"))
		return
	}
	st, err := h.svc.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in CreateUserInput
	if !h.decode(w, r, &in) {
		return
	}
	a, err := h.svc.CreateUser(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var in CreateAdminInput
	if !h.decode(w, r, &in) {
		return
	}
	a, err := h.svc.CreateAdmin(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.List)
}

func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.ListAdmins)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, entity.ListFilter, int, int) (*entity.ListPage, error)) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid page"))
		return
	}
	pageSize, err := intParam(q.Get("page_size"), DefaultPageSize)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid page_size"))
		return
	}
	f := entity.ListFilter{
		UserType:   entity.UserType(q.Get("user_type")),
		Department: q.Get("department"),
		RoleLevel:  entity.RoleLevel(q.Get("role_level")),
		Search:     q.Get("search"),
	}
	if v := q.Get("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody("invalid is_active"))
			return
		}
		f.IsActive = &active
	}
	res, err := fn(r.Context(), f, page, pageSize)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(id int64) (any, error) { return h.svc.GetUser(r.Context(), id) })
}

func (h *Handler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(id int64) (any, error) { return h.svc.GetAdmin(r.Context(), id) })
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var in UpdateUserInput
	if !h.decode(w, r, &in) {
		return
	}
	h.withID(w, r, func(id int64) (any, error) { return h.svc.UpdateUser(r.Context(), id, in) })
}

func (h *Handler) UpdateAdmin(w http.ResponseWriter, r *http.Request) {
	var in UpdateAdminInput
	if !h.decode(w, r, &in) {
		return
	}
	h.withID(w, r, func(id int64) (any, error) { return h.svc.UpdateAdmin(r.Context(), id, in) })
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(id int64) (any, error) { return h.svc.SoftDelete(r.Context(), id) })
}

func (h *Handler) RestoreUser(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(id int64) (any, error) { return h.svc.Restore(r.Context(), id) })
}

func (h *Handler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(id int64) (any, error) { return h.svc.SoftDeleteAdmin(r.Context(), id) })
}

func (h *Handler) RestoreAdmin(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, func(id int64) (any, error) { return h.svc.RestoreAdmin(r.Context(), id) })
}

// ResetPasswordRequest body for the administrative reset.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withID(w, r, func(id int64) (any, error) {
		if err := h.svc.ResetPassword(r.Context(), id, req.NewPassword); err != nil {
			return nil, err
		}
		return map[string]any{"message": "password reset", "user_id": id}, nil
	})
}

// ChangePasswordRequest body for the admin self-service password change.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) ChangeAdminPassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withID(w, r, func(id int64) (any, error) {
		if err := h.svc.ChangeAdminPassword(r.Context(), id, req.OldPassword, req.NewPassword); err != nil {
			return nil, err
		}
		return map[string]any{"message": "password updated", "user_id": id}, nil
	})
}

func (h *Handler) withID(w http.ResponseWriter, r *http.Request, fn func(id int64) (any, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	v, err := fn(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid payload"))
		return false
	}
	return true
}

// writeError maps the error kind to a status. Infrastructure details stay in the log.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, ErrConflict):
		h.writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, ErrBadRequest):
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, errorBody(MsgRejected))
	default:
		h.logger.Errorw("request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, errorBody("internal server error"))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(msg string) map[string]string { return map[string]string{"error": msg} }

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func clientInfo(r *http.Request) ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return ClientInfo{IP: ip, UserAgent: r.UserAgent()}
}
