package httpapi

import (
	"net/http"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/registry"
	"qms/turn-service/internal/report"
)

type createCustomerRequest struct {
	Name       string `json:"name" validate:"required,max=120"`
	NationalID string `json:"national_id" validate:"required,max=32"`
}

type updateCustomerRequest struct {
	Name       string `json:"name" validate:"omitempty,max=120"`
	NationalID string `json:"national_id" validate:"omitempty,max=32"`
}

type createStaffRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin agent receptionist"`
}

type updateStaffRequest struct {
	Name     string `json:"name" validate:"omitempty,max=120"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"omitempty,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=admin agent receptionist"`
}

type createModuleRequest struct {
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=255"`
	Active      *bool  `json:"active"`
}

type updateModuleRequest struct {
	Name        string `json:"name" validate:"omitempty,max=80"`
	Description string `json:"description" validate:"max=255"`
	Active      *bool  `json:"active"`
}

func (h *Handler) handleCustomers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, models.RoleReceptionist); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		customers, err := h.registry.ListCustomers(r.Context())
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, customers)
	case http.MethodPost:
		var req createCustomerRequest
		if !h.decodeRequest(w, r, &req) {
			return
		}
		customer, err := h.registry.RegisterCustomer(r.Context(), registry.CustomerInput{Name: req.Name, NationalID: req.NationalID})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, customer)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, action := splitResourcePath(r.URL.Path, "/api/customers/")
	if customerID == "" || action != "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if _, ok := requireRole(w, r, models.RoleReceptionist); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		customer, err := h.registry.GetCustomer(r.Context(), customerID)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case http.MethodPut:
		var req updateCustomerRequest
		if !h.decodeRequest(w, r, &req) {
			return
		}
		customer, err := h.registry.UpdateCustomer(r.Context(), customerID, registry.CustomerInput{Name: req.Name, NationalID: req.NationalID})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case http.MethodDelete:
		if err := h.registry.DeleteCustomer(r.Context(), customerID); err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleStaffList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		staff, err := h.registry.ListStaff(r.Context())
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, staff)
	case http.MethodPost:
		var req createStaffRequest
		if !h.decodeRequest(w, r, &req) {
			return
		}
		staff, err := h.registry.CreateStaff(r.Context(), registry.StaffInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Role:     req.Role,
		})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, staff)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleStaffMember(w http.ResponseWriter, r *http.Request) {
	staffID, action := splitResourcePath(r.URL.Path, "/api/staff/")
	if staffID == "" || action != "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if _, ok := requireRole(w, r); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		staff, err := h.registry.GetStaff(r.Context(), staffID)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, staff)
	case http.MethodPut:
		var req updateStaffRequest
		if !h.decodeRequest(w, r, &req) {
			return
		}
		staff, err := h.registry.UpdateStaff(r.Context(), staffID, registry.StaffInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Role:     req.Role,
		})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, staff)
	case http.MethodDelete:
		if err := h.registry.DeleteStaff(r.Context(), staffID); err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleModules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := requireRole(w, r, models.RoleAgent, models.RoleReceptionist); !ok {
			return
		}
		modules, err := h.queue.ModuleStatuses(r.Context())
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, modules)
	case http.MethodPost:
		if _, ok := requireRole(w, r); !ok {
			return
		}
		var req createModuleRequest
		if !h.decodeRequest(w, r, &req) {
			return
		}
		module, err := h.registry.CreateModule(r.Context(), registry.ModuleInput{
			Name:        req.Name,
			Description: req.Description,
			Active:      req.Active,
		})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, module)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleModuleActions(w http.ResponseWriter, r *http.Request) {
	moduleID, action := splitResourcePath(r.URL.Path, "/api/modules/")
	if moduleID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch action {
	case "":
		h.handleModule(w, r, moduleID)
	case "take":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		info, ok := requireRole(w, r, models.RoleAgent)
		if !ok {
			return
		}
		status, err := h.queue.TakeModule(r.Context(), moduleID, info.Staff.StaffID)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	case "leave":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		info, ok := requireRole(w, r, models.RoleAgent)
		if !ok {
			return
		}
		// Admins release any module; agents only their own.
		holder := info.Staff.StaffID
		if info.Staff.Role == models.RoleAdmin {
			holder = ""
		}
		status, err := h.queue.LeaveModule(r.Context(), moduleID, holder)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleModule(w http.ResponseWriter, r *http.Request, moduleID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := requireRole(w, r, models.RoleAgent, models.RoleReceptionist); !ok {
			return
		}
		status, err := h.queue.ModuleStatus(r.Context(), moduleID)
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	case http.MethodPut:
		if _, ok := requireRole(w, r); !ok {
			return
		}
		var req updateModuleRequest
		if !h.decodeRequest(w, r, &req) {
			return
		}
		module, err := h.registry.UpdateModule(r.Context(), moduleID, registry.ModuleInput{
			Name:        req.Name,
			Description: req.Description,
			Active:      req.Active,
		})
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, module)
	case http.MethodDelete:
		if _, ok := requireRole(w, r); !ok {
			return
		}
		if err := h.registry.DeleteModule(r.Context(), moduleID); err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r); !ok {
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
	stats, err := h.queue.StatsFor(r.Context(), date)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	staff, err := h.registry.ListStaff(r.Context())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	names := make(map[string]string, len(staff))
	for _, member := range staff {
		names[member.StaffID] = member.Name
	}

	data, err := report.DailyWorkbook(stats, turns, names)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(date)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
