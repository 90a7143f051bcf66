package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/patient-portal/internal/portalapi"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

// PortalGateway is the part of the portal API behind the history, booking and
// logout routes.
type PortalGateway interface {
	CheckSession(ctx context.Context) (*portalapi.Session, error)
	Logout(ctx context.Context) ([]*http.Cookie, error)
	ListPayments(ctx context.Context) (json.RawMessage, error)
	ListCashReceipts(ctx context.Context, userID string) (json.RawMessage, error)
	ListDepartments(ctx context.Context) (json.RawMessage, error)
	ListDoctorsByDepartment(ctx context.Context, department string) (json.RawMessage, error)
	GetAvailableSlots(ctx context.Context, doctorID, date string) (json.RawMessage, error)
	CreateAppointment(ctx context.Context, req portalapi.AppointmentRequest) (json.RawMessage, error)
	ListAppointmentsByPatient(ctx context.Context, patientID string) (json.RawMessage, error)
}

// PortalHandler relays the portal's read and booking calls for the logged-in
// patient.
type PortalHandler struct {
	gateway  PortalGateway
	validate *validator.Validate
	logger   *logging.Logger
}

// NewPortalHandler creates the handler.
func NewPortalHandler(gateway PortalGateway, logger *logging.Logger) *PortalHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PortalHandler{gateway: gateway, validate: newValidator(), logger: logger}
}

type appointmentRequest struct {
	DoctorID       string                   `json:"doctorId" validate:"required"`
	Department     string                   `json:"department" validate:"required"`
	Date           string                   `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot       string                   `json:"timeSlot" validate:"required"`
	PatientDetails portalapi.PatientDetails `json:"patientDetails"`
}

// ListPayments handles GET /api/me/payments.
func (h *PortalHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	data, err := h.gateway.ListPayments(r.Context())
	h.relay(w, "list payments", data, err)
}

// ListCashReceipts handles GET /api/me/cash-receipts.
func (h *PortalHandler) ListCashReceipts(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	data, err := h.gateway.ListCashReceipts(r.Context(), session.ID)
	h.relay(w, "list cash receipts", data, err)
}

// ListAppointments handles GET /api/me/appointments.
func (h *PortalHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	data, err := h.gateway.ListAppointmentsByPatient(r.Context(), session.ID)
	h.relay(w, "list appointments", data, err)
}

// ListDepartments handles GET /api/departments.
func (h *PortalHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	data, err := h.gateway.ListDepartments(r.Context())
	h.relay(w, "list departments", data, err)
}

// ListDoctors handles GET /api/departments/{department}/doctors.
func (h *PortalHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	data, err := h.gateway.ListDoctorsByDepartment(r.Context(), chi.URLParam(r, "department"))
	h.relay(w, "list doctors", data, err)
}

// AvailableSlots handles GET /api/doctors/{doctorID}/slots?date=YYYY-MM-DD.
func (h *PortalHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  errBadRequest.Error(),
			"fields": map[string]string{"date": "must be a date in YYYY-MM-DD format"},
		})
		return
	}
	if _, ok := h.session(w, r); !ok {
		return
	}
	data, err := h.gateway.GetAvailableSlots(r.Context(), chi.URLParam(r, "doctorID"), date)
	h.relay(w, "available slots", data, err)
}

// CreateAppointment handles POST /api/appointments. The patient is always the
// session's, whatever the body says.
func (h *PortalHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req appointmentRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	data, err := h.gateway.CreateAppointment(r.Context(), portalapi.AppointmentRequest{
		PatientID:      session.ID,
		DoctorID:       req.DoctorID,
		Department:     req.Department,
		Date:           req.Date,
		TimeSlot:       req.TimeSlot,
		PatientDetails: req.PatientDetails,
	})
	if err != nil {
		h.gatewayError(w, "create appointment", err)
		return
	}
	writeRaw(w, http.StatusCreated, data)
}

// Logout handles POST /api/logout and relays the API's cookies so the browser
// drops its session.
func (h *PortalHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookies, err := h.gateway.Logout(r.Context())
	if err != nil {
		h.gatewayError(w, "logout", err)
		return
	}
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out", "redirect": loginPath})
}

// session checks the forwarded cookie. On failure it has already answered.
func (h *PortalHandler) session(w http.ResponseWriter, r *http.Request) (*portalapi.Session, bool) {
	session, err := h.gateway.CheckSession(r.Context())
	var apiErr *portalapi.APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.Unauthorized()) {
		h.gatewayError(w, "check session", err)
		return nil, false
	}
	if err != nil || session.Role != portalapi.RolePatient {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated", "redirect": loginPath})
		return nil, false
	}
	return session, true
}

func (h *PortalHandler) relay(w http.ResponseWriter, op string, data json.RawMessage, err error) {
	if err != nil {
		h.gatewayError(w, op, err)
		return
	}
	writeRaw(w, http.StatusOK, data)
}

func (h *PortalHandler) gatewayError(w http.ResponseWriter, op string, err error) {
	var apiErr *portalapi.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		if apiErr.Unauthorized() {
			status = http.StatusUnauthorized
		} else if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		h.logger.Warn("portal api rejected request", "operation", op, "status", apiErr.StatusCode)
		jsonError(w, msg, status)
		return
	}
	h.logger.Error("portal api request failed", "operation", op, "error", err)
	jsonError(w, "portal api unavailable", http.StatusBadGateway)
}

func writeRaw(w http.ResponseWriter, status int, data json.RawMessage) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
