/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types that are
  already shaped for clients (leave.State, leave.Request) are returned as is;
  everything else gets a DTO here.

NAMING CONVENTION:
  - *Request:  Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Request bodies carry go-playground/validator tags and are checked by
  Handler.decode before any domain call.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/vacation-planner/calendar"
	"github.com/warp/vacation-planner/leave"
)

// =============================================================================
// SESSION
// =============================================================================

// LoginRequest identifies the employee starting a session.
type LoginRequest struct {
	EmployeeID string `json:"employee_id" validate:"required,max=64"`
}

// LoginResponse carries the bearer token.
type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresIn int64          `json:"expires_in"`
	Employee  leave.Employee `json:"employee"`
	IsAdmin   bool           `json:"is_admin"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// SubmitRequest is the body of POST /api/requests. ID edits an existing
// request; Force joins the waitlist instead of asking for confirmation.
type SubmitRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
	ID    int64  `json:"id,omitempty" validate:"gte=0"`
	Force bool   `json:"force,omitempty"`
}

// SubmitResponse is returned with 201 when a request was stored.
type SubmitResponse struct {
	Status        string         `json:"status"`
	RequestStatus leave.Status   `json:"request_status"`
	Request       *leave.Request `json:"request"`
	Toast         string         `json:"toast"`
}

// NeedsConfirmationResponse is returned with 409 when the request conflicts
// with capacity or coverage and Force was not set.
type NeedsConfirmationResponse struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Reason  string          `json:"reason"`
	Day     calendar.Date   `json:"day"`
	Message string          `json:"message"`
	Details *leave.Conflict `json:"details,omitempty"`
}

// RequestResponse wraps a single request.
type RequestResponse struct {
	Status  string        `json:"status"`
	Request leave.Request `json:"request"`
}

// =============================================================================
// CALENDAR
// =============================================================================

// HolidaysResponse lists the holidays of one year.
type HolidaysResponse struct {
	Region   calendar.Region    `json:"region"`
	Year     int                `json:"year"`
	Holidays []calendar.Holiday `json:"holidays"`
}

// =============================================================================
// ADMIN
// =============================================================================

// ReportResponse summarizes a report run.
type ReportResponse struct {
	Requests    int    `json:"requests"`
	Pending     int    `json:"pending"`
	Summary     string `json:"summary"`
	GeneratedAt string `json:"generated_at"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
