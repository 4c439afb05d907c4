/*
handlers.go - HTTP API handlers for the vacation planner

PURPOSE:
  Exposes the admission controller via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to leave.Service.

ENDPOINTS:
  Session:
    POST   /api/login                  Start a session (rate limited)
    POST   /api/logout                 Revoke the current token

  Requests:
    GET    /api/state                  Dashboard state for the caller
    POST   /api/requests               Submit or edit a request
    POST   /api/requests/{id}/approve  Approve (admin)
    DELETE /api/requests/{id}          Cancel (owner) or reject (admin)

  Calendar:
    GET    /api/holidays?year=         Holidays of the configured region

  Admin:
    POST   /api/admin/reset            Drop every request
    GET    /api/admin/export           Download csv or xlsx report
    POST   /api/admin/report           Deliver the periodic report now

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario (admin)

ERROR HANDLING:
  Errors are returned as {"error", "code", "details"} with:
  - 400: Malformed body or parameter
  - 401: Missing, invalid or revoked session
  - 403: Caller lacks the required role
  - 404: Unknown request or employee
  - 409: Conflict that needs confirmation
  - 422: Validation, reversed range, empty interval, quota
  - 429: Login rate limit
  - 503: Concurrent modification retries exhausted
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Authentication, rate limiting, access log
  - server.go: Router setup
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/vacation-planner/calendar"
	"github.com/warp/vacation-planner/leave"
	"github.com/warp/vacation-planner/report"
	"github.com/warp/vacation-planner/session"
)

// Codes for errors that do not originate in the leave package.
const (
	codeBadRequest      = "bad_request"
	codeValidation      = "validation"
	codeUnauthenticated = "unauthenticated"
	codeRateLimited     = "rate_limited"
	codeUnavailable     = "unavailable"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *leave.Service
	Sessions *session.Manager
	// Reports is optional; without it POST /api/admin/report returns 503.
	Reports *report.Scheduler
	// Checks are run by /healthz, keyed by component name.
	Checks map[string]func(context.Context) error

	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(svc *leave.Service, sessions *session.Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:  svc,
		Sessions: sessions,
		Checks:   make(map[string]func(context.Context) error),
		logger:   logger.Named("api"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// Login issues a token for a known employee id.
// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	caller, err := h.Service.ResolveCaller(r.Context(), req.EmployeeID)
	if err != nil {
		if leave.IsNotFound(err) {
			h.logger.Info("login refused", zap.String("employee_id", req.EmployeeID))
			writeErrorCode(w, http.StatusUnauthorized, codeUnauthenticated, "Unknown employee", nil)
			return
		}
		h.writeServiceError(w, "Failed to look up employee", err)
		return
	}

	token, err := h.Sessions.Issue(caller.Employee.ID)
	if err != nil {
		h.writeServiceError(w, "Failed to issue token", err)
		return
	}

	h.logger.Info("login", zap.String("employee_id", caller.Employee.ID), zap.Bool("admin", caller.IsAdmin))
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresIn: int64(h.Sessions.TTL() / time.Second),
		Employee:  caller.Employee,
		IsAdmin:   caller.IsAdmin,
	})
}

// Logout revokes the presented token.
// POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthenticated, "Not logged in", nil)
		return
	}
	if err := h.Sessions.Revoke(r.Context(), claims); err != nil {
		h.writeServiceError(w, "Failed to revoke token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// GetState returns the caller's dashboard state.
// GET /api/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.Service.LoadState(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, "Failed to load state", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SubmitRequest submits a new request or edits an existing one.
// POST /api/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, err := calendar.ParseDate(req.Start)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "Invalid start date (use YYYY-MM-DD)", err)
		return
	}
	end, err := calendar.ParseDate(req.End)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "Invalid end date (use YYYY-MM-DD)", err)
		return
	}

	decision, err := h.Service.Submit(r.Context(), callerFrom(r.Context()), leave.Submission{
		Start:  start,
		End:    end,
		EditID: req.ID,
		Force:  req.Force,
	})
	if err != nil {
		h.writeServiceError(w, "Request rejected", err)
		return
	}

	if decision.Outcome == leave.OutcomeNeedsConfirmation {
		c := decision.Conflict
		writeJSON(w, http.StatusConflict, NeedsConfirmationResponse{
			Status:  leave.CodeNeedsConfirmation,
			Code:    leave.CodeNeedsConfirmation,
			Reason:  string(c.Reason),
			Day:     c.Day,
			Message: decision.Prompt(),
			Details: c,
		})
		return
	}

	writeJSON(w, http.StatusCreated, SubmitResponse{
		Status:        "ok",
		RequestStatus: decision.Request.Status,
		Request:       decision.Request,
		Toast:         decision.Toast(),
	})
}

// ApproveRequest approves a pending or waitlisted request.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	req, err := h.Service.Approve(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, "Failed to approve request", err)
		return
	}
	writeJSON(w, http.StatusOK, RequestResponse{Status: "approved", Request: req})
}

// DeleteRequest removes a request. Owners cancel, administrators reject.
// DELETE /api/requests/{id}
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), callerFrom(r.Context()), id); err != nil {
		h.writeServiceError(w, "Failed to delete request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "id": id})
}

func requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "Invalid request id", err)
		return 0, false
	}
	return id, true
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

// ListHolidays returns the holidays of a year for the configured region.
// GET /api/holidays?year=2026
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := h.now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1583 || y > 9999 {
			writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	writeJSON(w, http.StatusOK, HolidaysResponse{
		Region:   h.Service.Calendar().Region(),
		Year:     year,
		Holidays: h.Service.Holidays(year),
	})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// ResetRequests drops every request.
// POST /api/admin/reset
func (h *Handler) ResetRequests(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Reset(r.Context(), callerFrom(r.Context())); err != nil {
		h.writeServiceError(w, "Failed to reset", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ExportReport downloads the request report.
// GET /api/admin/export?format=csv|xlsx
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "Invalid format", err)
		return
	}

	rep, err := h.Service.ExportReportFor(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, "Failed to build report", err)
		return
	}
	data, err := report.RenderBytes(format, rep)
	if err != nil {
		h.writeServiceError(w, "Failed to render report", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName(rep.GeneratedAt)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// RunReport delivers the periodic report immediately.
// POST /api/admin/report
func (h *Handler) RunReport(w http.ResponseWriter, r *http.Request) {
	if h.Reports == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, codeUnavailable, "Reports are not configured", nil)
		return
	}
	rep, err := h.Reports.RunNow(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to deliver report", err)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{
		Requests:    len(rep.Rows),
		Pending:     rep.Pending,
		Summary:     rep.Summary(),
		GeneratedAt: rep.GeneratedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// OPS
// =============================================================================

// Health runs every registered check.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failures := make(map[string]string)
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body, writing the error response on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeErrorCode(w, http.StatusUnprocessableEntity, codeValidation, "Validation failed", err)
		return false
	}
	return true
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, leave.ErrInvalidRange),
		errors.Is(err, leave.ErrEmptyInterval),
		errors.Is(err, leave.ErrQuotaExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, leave.ErrNeedsConfirmation),
		errors.Is(err, leave.ErrCapacityExceeded),
		errors.Is(err, leave.ErrCoverageInsufficient):
		return http.StatusConflict
	case errors.Is(err, leave.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, leave.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, leave.ErrConcurrentModification):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	writeErrorCode(w, status, leave.Code(err), message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
