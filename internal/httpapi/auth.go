package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"qms/turn-service/internal/auth"
	"qms/turn-service/internal/models"
	"qms/turn-service/internal/registry"
	"qms/turn-service/internal/store"
)

type authContextKey struct{}

type authInfo struct {
	Staff  models.Staff
	Claims auth.Claims
}

// AuthMiddleware resolves the session token to a staff member. The staff row
// is reloaded on every request so role changes and deletions apply at once.
func AuthMiddleware(reg *registry.Service, tokens *auth.Tokens, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := sessionTokenFromRequest(r)
		if token == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		claims, err := tokens.Parse(token)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
			return
		}
		staff, err := reg.GetStaff(r.Context(), claims.StaffID())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "session lookup failed")
			return
		}
		if entry := logEntryFromContext(r.Context()); entry != nil {
			entry.staffID = staff.StaffID
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Staff: staff, Claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	if !ok {
		return authInfo{}, false
	}
	return info, true
}

// requireRole passes admins and any of roles. With no roles it is admin-only.
func requireRole(w http.ResponseWriter, r *http.Request, roles ...string) (authInfo, bool) {
	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return authInfo{}, false
	}
	if info.Staff.Role == models.RoleAdmin || contains(roles, info.Staff.Role) {
		return info, true
	}
	writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "role not permitted")
	return authInfo{}, false
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Staff     models.Staff `json:"staff"`
}

type meResponse struct {
	Staff  models.Staff         `json:"staff"`
	Module *models.ModuleStatus `json:"module"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	staff, err := h.registry.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	token, expires, err := h.tokens.Issue(staff)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, Staff: staff})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	resp := meResponse{Staff: info.Staff}
	module, holds, err := h.queue.ModuleForStaff(r.Context(), info.Staff.StaffID)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if holds {
		resp.Module = &module
	}
	writeJSON(w, http.StatusOK, resp)
}

func sessionTokenFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/auth/login", "/api/auth/logout":
		return r.Method == http.MethodPost
	case "/api/queue/board", "/api/queue/stats", "/api/queue/waiting", "/api/queue/served":
		return r.Method == http.MethodGet
	default:
		return r.Method == http.MethodOptions
	}
}
