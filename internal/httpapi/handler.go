package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"qms/turn-service/internal/auth"
	"qms/turn-service/internal/models"
	"qms/turn-service/internal/queue"
	"qms/turn-service/internal/registry"
	"qms/turn-service/internal/store"

	"github.com/go-playground/validator/v10"
)

const sessionCookie = "turn_session"

type Handler struct {
	store    store.Store
	queue    *queue.Service
	registry *registry.Service
	tokens   *auth.Tokens
	metrics  *Metrics
	validate *validator.Validate

	cookieSecure bool
}

type Options struct {
	Metrics      *Metrics
	CookieSecure bool
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(st store.Store, q *queue.Service, reg *registry.Service, tokens *auth.Tokens, options Options) *Handler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		store:        st,
		queue:        q,
		registry:     reg,
		tokens:       tokens,
		metrics:      options.Metrics,
		validate:     validate,
		cookieSecure: options.CookieSecure,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", h.metrics.Handler())
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/turns", h.handleTurns)
	mux.HandleFunc("/api/turns/", h.handleTurnActions)
	mux.HandleFunc("/api/queue/call-next", h.handleCallNext)
	mux.HandleFunc("/api/queue/waiting", h.handleWaiting)
	mux.HandleFunc("/api/queue/served", h.handleServed)
	mux.HandleFunc("/api/queue/stats", h.handleStats)
	mux.HandleFunc("/api/queue/board", h.handleBoard)
	mux.HandleFunc("/api/modules", h.handleModules)
	mux.HandleFunc("/api/modules/", h.handleModuleActions)
	mux.HandleFunc("/api/customers", h.handleCustomers)
	mux.HandleFunc("/api/customers/", h.handleCustomer)
	mux.HandleFunc("/api/staff", h.handleStaffList)
	mux.HandleFunc("/api/staff/", h.handleStaffMember)
	mux.HandleFunc("/api/reports/daily", h.handleDailyReport)
	return mux
}

// Stack wraps the routes with the middleware chain the service runs behind.
// limiter may be nil.
func (h *Handler) Stack(limiter *RateLimiter) http.Handler {
	next := h.Routes()
	if limiter != nil {
		next = limiter.Middleware(next)
	}
	next = AuthMiddleware(h.registry, h.tokens, next)
	next = h.metrics.Middleware(next)
	return RequestIDMiddleware(LoggingMiddleware(next))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "unavailable", "store unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createTurnRequest struct {
	NationalID string `json:"national_id" validate:"required,max=32"`
}

type completeTurnRequest struct {
	StaffID string `json:"staff_id" validate:"omitempty,uuid"`
}

type callNextRequest struct {
	ModuleID string `json:"module_id" validate:"required,uuid"`
}

// turnResponse wraps a single turn. Turn is null when call-next finds the
// queue empty.
type turnResponse struct {
	Turn *models.TurnDetail `json:"turn"`
}

type turnsResponse struct {
	Turns []models.TurnDetail `json:"turns"`
}

func turnList(turns []models.TurnDetail) turnsResponse {
	if turns == nil {
		turns = []models.TurnDetail{}
	}
	return turnsResponse{Turns: turns}
}

func (h *Handler) handleTurns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if _, ok := requireRole(w, r, models.RoleReceptionist); !ok {
			return
		}
		var req createTurnRequest
		if !h.decodeRequest(w, r, &req) {
			return
		}
		turn, err := h.queue.CreateTurn(r.Context(), strings.TrimSpace(req.NationalID))
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		h.metrics.transition("create")
		writeJSON(w, http.StatusCreated, turnResponse{Turn: &turn})
	case http.MethodGet:
		if _, ok := requireRole(w, r, models.RoleReceptionist, models.RoleAgent); !ok {
			return
		}
		date, ok := h.serviceDateParam(w, r)
		if !ok {
			return
		}
		turns, err := h.queue.DayTurns(r.Context(), date)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, turnList(turns))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleTurnActions(w http.ResponseWriter, r *http.Request) {
	turnID, action := splitResourcePath(r.URL.Path, "/api/turns/")
	if turnID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if _, ok := requireRole(w, r, models.RoleReceptionist, models.RoleAgent); !ok {
			return
		}
		turn, err := h.queue.GetTurn(r.Context(), turnID)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, turnResponse{Turn: &turn})
	case "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if _, ok := requireRole(w, r, models.RoleReceptionist); !ok {
			return
		}
		turn, err := h.queue.CancelTurn(r.Context(), turnID)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		h.metrics.transition("cancel")
		writeJSON(w, http.StatusOK, turnResponse{Turn: &turn})
	case "complete":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		info, ok := requireRole(w, r, models.RoleAgent)
		if !ok {
			return
		}
		var req completeTurnRequest
		if !h.decodeRequest(w, r, &req) {
			return
		}
		staffID := req.StaffID
		if staffID == "" {
			staffID = info.Staff.StaffID
		}
		if info.Staff.Role != models.RoleAdmin && staffID != info.Staff.StaffID {
			writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "agents complete turns as themselves")
			return
		}
		turn, err := h.queue.CompleteTurn(r.Context(), turnID, staffID)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		h.metrics.transition("complete")
		writeJSON(w, http.StatusOK, turnResponse{Turn: &turn})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireRole(w, r, models.RoleAgent)
	if !ok {
		return
	}
	var req callNextRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	// Admins may call next at any attended module.
	agentID := info.Staff.StaffID
	if info.Staff.Role == models.RoleAdmin {
		agentID = ""
	}
	turn, err := h.queue.CallNext(r.Context(), req.ModuleID, agentID)
	switch {
	case errors.Is(err, store.ErrQueueEmpty):
		writeJSON(w, http.StatusOK, turnResponse{})
		return
	case errors.Is(err, store.ErrModuleNotHeld):
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "module is not held by this agent")
		return
	case err != nil:
		h.writeMappedError(w, r, err)
		return
	}
	h.metrics.transition("assign")
	writeJSON(w, http.StatusOK, turnResponse{Turn: &turn})
}

func (h *Handler) handleWaiting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	turns, err := h.queue.WaitingTurns(r.Context())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnList(turns))
}

func (h *Handler) handleServed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	turns, err := h.queue.CurrentlyServed(r.Context())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnList(turns))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	date, ok := h.serviceDateParam(w, r)
	if !ok {
		return
	}
	stats, err := h.queue.StatsFor(r.Context(), date)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	board, err := h.queue.Board(r.Context())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// serviceDateParam reads ?date=YYYY-MM-DD, defaulting to today's service date.
func (h *Handler) serviceDateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		return h.queue.Today(), true
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return "", false
	}
	return date, true
}

// decodeRequest decodes a JSON body into dst and validates it. An empty body
// decodes as an empty object.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "min", "max":
			parts = append(parts, fmt.Sprintf("%s violates %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s must be a valid %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// splitResourcePath turns "/api/turns/{id}/{action}" into id and action.
func splitResourcePath(path, prefix string) (string, string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, registry.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, store.ErrCustomerNotFound):
		return http.StatusNotFound, "customer_not_found", "customer not found"
	case errors.Is(err, store.ErrStaffNotFound):
		return http.StatusNotFound, "staff_not_found", "staff member not found"
	case errors.Is(err, store.ErrModuleNotFound):
		return http.StatusNotFound, "module_not_found", "module not found"
	case errors.Is(err, store.ErrTurnNotFound):
		return http.StatusNotFound, "turn_not_found", "turn not found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", "resource not found"
	case errors.Is(err, store.ErrDuplicateNationalID):
		return http.StatusConflict, "duplicate_national_id", "national id already registered"
	case errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email", "email already registered"
	case errors.Is(err, store.ErrDuplicateModuleName):
		return http.StatusConflict, "duplicate_module_name", "module name already exists"
	case errors.Is(err, store.ErrActiveTurnExists):
		return http.StatusConflict, "active_turn_exists", "customer already has an active turn"
	case errors.Is(err, store.ErrModuleBusy):
		return http.StatusConflict, "module_busy", "module is serving a turn"
	case errors.Is(err, store.ErrTurnCompleted):
		return http.StatusConflict, "turn_completed", "turn already completed"
	case errors.Is(err, store.ErrTurnAlreadyCancelled):
		return http.StatusConflict, "turn_cancelled", "turn already cancelled"
	case errors.Is(err, store.ErrTurnNotServing):
		return http.StatusConflict, "turn_not_serving", "turn is not being served"
	case errors.Is(err, store.ErrModuleTaken):
		return http.StatusConflict, "module_taken", "module held by another staff member"
	case errors.Is(err, store.ErrStaffHoldsModule):
		return http.StatusConflict, "staff_holds_module", "staff member already holds a module"
	case errors.Is(err, store.ErrModuleNotHeld):
		return http.StatusConflict, "module_not_held", "module not held by this staff member"
	case errors.Is(err, store.ErrModuleUnattended):
		return http.StatusConflict, "module_unattended", "module has no agent"
	case errors.Is(err, store.ErrModuleInactive):
		return http.StatusConflict, "module_inactive", "module is inactive"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", "request conflicts with current state"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
