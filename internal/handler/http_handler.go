package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
	"github.com/pesio-ai/be-hr-timesheets/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	timesheets *service.TimesheetService
	users      *service.UserService
	sites      *service.SiteService
	log        *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(timesheets *service.TimesheetService, users *service.UserService, sites *service.SiteService, log *logger.Logger) *HTTPHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPHandler{
		timesheets: timesheets,
		users:      users,
		sites:      sites,
		log:        log.Component("http"),
	}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.HandleFunc("/api/v1/timesheets", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListTimesheets(w, r)
		case http.MethodPost:
			h.OpenWeek(w, r)
		default:
			h.methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/v1/timesheets/get", h.GetTimesheet)
	mux.HandleFunc("/api/v1/timesheets/entries", h.UpdateEntries)
	mux.HandleFunc("/api/v1/timesheets/submit", h.transition(h.timesheets.Submit))
	mux.HandleFunc("/api/v1/timesheets/approve", h.transition(h.timesheets.Approve))
	mux.HandleFunc("/api/v1/timesheets/recall", h.transition(h.timesheets.Recall))
	mux.HandleFunc("/api/v1/timesheets/clear-rejection", h.transition(h.timesheets.ClearRejection))
	mux.HandleFunc("/api/v1/timesheets/reject", h.RejectTimesheet)
	mux.HandleFunc("/api/v1/timesheets/status", h.SetTimesheetStatus)
	mux.HandleFunc("/api/v1/timesheets/delete", h.DeleteTimesheet)
	mux.HandleFunc("/api/v1/timesheets/approval", h.GetApprovalStatus)
	mux.HandleFunc("/api/v1/timesheets/history", h.GetHistory)
	mux.HandleFunc("/api/v1/approvals/pending", h.PendingApprovals)

	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListUsers(w, r)
		case http.MethodPost:
			h.CreateUser(w, r)
		default:
			h.methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/v1/users/get", h.GetUser)
	mux.HandleFunc("/api/v1/users/update", h.UpdateUser)
	mux.HandleFunc("/api/v1/users/delete", h.DeleteUser)

	mux.HandleFunc("/api/v1/sites", h.ListSites)
	mux.HandleFunc("/api/v1/sites/assign", h.AssignSite)
}

// ── Timesheets ────────────────────────────────────────────────────────────────

// ListTimesheets handles list timesheets HTTP requests
func (h *HTTPHandler) ListTimesheets(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	timesheets, total, err := h.timesheets.List(r.Context(), actorID, &service.ListRequest{
		UserID:   q.Get("user_id"),
		Status:   q.Get("status"),
		FromWeek: q.Get("from_week"),
		ToWeek:   q.Get("to_week"),
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"timesheets": timesheets,
		"total":      total,
		"page":       page,
		"page_size":  pageSize,
	})
}

// OpenWeek handles open week HTTP requests
func (h *HTTPHandler) OpenWeek(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req service.OpenWeekRequest
	if !h.decode(w, r, &req) {
		return
	}

	ts, err := h.timesheets.OpenWeek(r.Context(), actorID, &req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ts)
}

// GetTimesheet handles get timesheet HTTP requests
func (h *HTTPHandler) GetTimesheet(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	ts, err := h.timesheets.Get(r.Context(), actorID, r.URL.Query().Get("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ts)
}

// UpdateEntries handles replace entries HTTP requests
func (h *HTTPHandler) UpdateEntries(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodPut) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		ID      string                `json:"id"`
		Entries []*service.EntryInput `json:"entries"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	ts, err := h.timesheets.UpdateEntries(r.Context(), actorID, req.ID, req.Entries)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ts)
}

type timesheetOp func(ctx context.Context, actorID, id string) (*repository.Timesheet, error)

// transition adapts a by-id state transition to a POST handler.
func (h *HTTPHandler) transition(fn timesheetOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, http.MethodPost) {
			return
		}
		actorID, ok := h.actor(w, r)
		if !ok {
			return
		}

		var req struct {
			ID string `json:"id"`
		}
		if !h.decode(w, r, &req) {
			return
		}

		ts, err := fn(r.Context(), actorID, req.ID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, ts)
	}
}

// RejectTimesheet handles reject timesheet HTTP requests
func (h *HTTPHandler) RejectTimesheet(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodPost) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	ts, err := h.timesheets.Reject(r.Context(), actorID, req.ID, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ts)
}

// SetTimesheetStatus handles the admin status override
func (h *HTTPHandler) SetTimesheetStatus(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodPost) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	ts, err := h.timesheets.SetStatus(r.Context(), actorID, req.ID, req.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ts)
}

// DeleteTimesheet handles delete timesheet HTTP requests
func (h *HTTPHandler) DeleteTimesheet(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodDelete) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.timesheets.Delete(r.Context(), actorID, r.URL.Query().Get("id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetApprovalStatus handles approval status HTTP requests
func (h *HTTPHandler) GetApprovalStatus(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	status, err := h.timesheets.ApprovalStatus(r.Context(), actorID, r.URL.Query().Get("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

// GetHistory handles audit trail HTTP requests
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	entries, err := h.timesheets.History(r.Context(), actorID, r.URL.Query().Get("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

// PendingApprovals handles the approver inbox
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	pending, err := h.timesheets.PendingApprovals(r.Context(), actorID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"timesheets": pending, "total": len(pending)})
}

// ── Users ─────────────────────────────────────────────────────────────────────

// ListUsers handles list users HTTP requests
func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	users, err := h.users.List(r.Context(), actorID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"users": users, "total": len(users)})
}

// GetUser handles get user HTTP requests
func (h *HTTPHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), actorID, r.URL.Query().Get("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, user)
}

// CreateUser handles create user HTTP requests
func (h *HTTPHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req service.CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.Create(r.Context(), actorID, &req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, user)
}

// UpdateUser handles update user HTTP requests
func (h *HTTPHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodPut) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req service.UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.Update(r.Context(), actorID, &req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, user)
}

// DeleteUser handles delete user HTTP requests
func (h *HTTPHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodDelete) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), actorID, r.URL.Query().Get("id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Sites ─────────────────────────────────────────────────────────────────────

// ListSites handles list sites HTTP requests
func (h *HTTPHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodGet) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	sites, err := h.sites.List(r.Context(), actorID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"sites": sites})
}

// AssignSite handles site assignment HTTP requests
func (h *HTTPHandler) AssignSite(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, http.MethodPost) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID string `json:"user_id"`
		SiteID string `json:"site_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.sites.Assign(r.Context(), actorID, req.UserID, req.SiteID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}
