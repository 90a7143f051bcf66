package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/patient-portal/internal/portalapi"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

type fakePortal struct {
	session    *portalapi.Session
	sessionErr error
	listErr    error

	cashUserID   string
	apptPatient  string
	doctorDept   string
	slotsDoctor  string
	slotsDate    string
	booked       *portalapi.AppointmentRequest
	logoutCookie *http.Cookie
}

func newFakePortal() *fakePortal {
	return &fakePortal{session: &portalapi.Session{ID: "user-000001", Role: portalapi.RolePatient}}
}

func (f *fakePortal) CheckSession(context.Context) (*portalapi.Session, error) {
	return f.session, f.sessionErr
}

func (f *fakePortal) Logout(context.Context) ([]*http.Cookie, error) {
	if f.logoutCookie == nil {
		return nil, nil
	}
	return []*http.Cookie{f.logoutCookie}, nil
}

func (f *fakePortal) ListPayments(context.Context) (json.RawMessage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return json.RawMessage(`[{"id":"pay-1","amount":55}]`), nil
}

func (f *fakePortal) ListCashReceipts(_ context.Context, userID string) (json.RawMessage, error) {
	f.cashUserID = userID
	return json.RawMessage(`[]`), nil
}

func (f *fakePortal) ListDepartments(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[{"name":"Cardiology"}]`), nil
}

func (f *fakePortal) ListDoctorsByDepartment(_ context.Context, department string) (json.RawMessage, error) {
	f.doctorDept = department
	return json.RawMessage(`[]`), nil
}

func (f *fakePortal) GetAvailableSlots(_ context.Context, doctorID, date string) (json.RawMessage, error) {
	f.slotsDoctor, f.slotsDate = doctorID, date
	return json.RawMessage(`["09:00","09:30"]`), nil
}

func (f *fakePortal) CreateAppointment(_ context.Context, req portalapi.AppointmentRequest) (json.RawMessage, error) {
	f.booked = &req
	return json.RawMessage(`{"id":"appt-1"}`), nil
}

func (f *fakePortal) ListAppointmentsByPatient(_ context.Context, patientID string) (json.RawMessage, error) {
	f.apptPatient = patientID
	return json.RawMessage(`[]`), nil
}

func newPortalRouter(gw PortalGateway) chi.Router {
	h := NewPortalHandler(gw, logging.Discard())
	r := chi.NewRouter()
	r.Get("/api/me/payments", h.ListPayments)
	r.Get("/api/me/cash-receipts", h.ListCashReceipts)
	r.Get("/api/me/appointments", h.ListAppointments)
	r.Get("/api/departments", h.ListDepartments)
	r.Get("/api/departments/{department}/doctors", h.ListDoctors)
	r.Get("/api/doctors/{doctorID}/slots", h.AvailableSlots)
	r.Post("/api/appointments", h.CreateAppointment)
	r.Post("/api/logout", h.Logout)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPortalHistoryUsesSessionPatient(t *testing.T) {
	gw := newFakePortal()
	r := newPortalRouter(gw)

	rec := serve(r, http.MethodGet, "/api/me/payments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"pay-1","amount":55}]`, rec.Body.String())

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/me/cash-receipts", "").Code)
	assert.Equal(t, "user-000001", gw.cashUserID)

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/me/appointments", "").Code)
	assert.Equal(t, "user-000001", gw.apptPatient)
}

func TestPortalRequiresPatientSession(t *testing.T) {
	tests := []struct {
		name string
		gw   *fakePortal
		want int
	}{
		{
			name: "expired session",
			gw:   &fakePortal{sessionErr: &portalapi.APIError{Operation: "check session", StatusCode: http.StatusUnauthorized}},
			want: http.StatusUnauthorized,
		},
		{
			name: "wrong role",
			gw:   &fakePortal{session: &portalapi.Session{ID: "doc-1", Role: "Doctor"}},
			want: http.StatusUnauthorized,
		},
		{
			name: "api down",
			gw:   &fakePortal{sessionErr: errors.New("connection refused")},
			want: http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newPortalRouter(tt.gw), http.MethodGet, "/api/departments", "")
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"redirect":"/login"`)
			}
		})
	}
}

func TestPortalBookingLookups(t *testing.T) {
	gw := newFakePortal()
	r := newPortalRouter(gw)

	rec := serve(r, http.MethodGet, "/api/departments/Cardiology/doctors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cardiology", gw.doctorDept)

	rec = serve(r, http.MethodGet, "/api/doctors/doc-7/slots?date=2026-10-20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "doc-7", gw.slotsDoctor)
	assert.Equal(t, "2026-10-20", gw.slotsDate)

	rec = serve(r, http.MethodGet, "/api/doctors/doc-7/slots?date=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAppointmentForcesSessionPatient(t *testing.T) {
	gw := newFakePortal()
	r := newPortalRouter(gw)

	body := `{
		"doctorId": "doc-7",
		"department": "Cardiology",
		"date": "2026-10-20",
		"timeSlot": "09:30",
		"patientDetails": {"fullName": "John Doe", "email": "john@example.com", "phone": "555-0100"}
	}`
	rec := serve(r, http.MethodPost, "/api/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, gw.booked)
	assert.Equal(t, "user-000001", gw.booked.PatientID)
	assert.Equal(t, "09:30", gw.booked.TimeSlot)

	rec = serve(r, http.MethodPost, "/api/appointments", `{"patientId":"someone-else","doctorId":"doc-7"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown patientId field is rejected")
}

func TestCreateAppointmentValidatesDetails(t *testing.T) {
	r := newPortalRouter(newFakePortal())
	body := `{"doctorId":"doc-7","department":"Cardiology","date":"2026-10-20","timeSlot":"09:30","patientDetails":{"fullName":"John","email":"nope","phone":"1"}}`

	rec := serve(r, http.MethodPost, "/api/appointments", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "must be a valid email address", resp.Fields["email"])
}

func TestPortalGatewayErrors(t *testing.T) {
	gw := newFakePortal()
	r := newPortalRouter(gw)

	gw.listErr = &portalapi.APIError{Operation: "list payments", StatusCode: http.StatusNotFound, Message: "No payments"}
	rec := serve(r, http.MethodGet, "/api/me/payments", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No payments")

	gw.listErr = &portalapi.APIError{Operation: "list payments", StatusCode: http.StatusInternalServerError}
	assert.Equal(t, http.StatusBadGateway, serve(r, http.MethodGet, "/api/me/payments", "").Code)

	gw.listErr = errors.New("timeout")
	assert.Equal(t, http.StatusBadGateway, serve(r, http.MethodGet, "/api/me/payments", "").Code)
}

func TestLogoutRelaysCookies(t *testing.T) {
	gw := newFakePortal()
	gw.logoutCookie = &http.Cookie{Name: "token", Value: "", MaxAge: -1, Path: "/"}

	rec := serve(newPortalRouter(gw), http.MethodPost, "/api/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "token=")
	assert.Contains(t, rec.Body.String(), "/login")
}
