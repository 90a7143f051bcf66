package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/patient-portal/pkg/logging"
)

const (
	DefaultBaseURL = "http://localhost:8000/api"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 300
)

var tracer = otel.Tracer("portal.internal.portalapi")

// ErrPatientNotFound is returned when the patient lookup yields no record.
var ErrPatientNotFound = errors.New("portalapi: patient not found")

// Observer receives one observation per completed request. statusCode is 0
// when the request never got a response.
type Observer interface {
	ObserveGatewayRequest(operation string, statusCode int, seconds float64)
}

// Config holds configuration for the API client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	Observer   Observer
}

// Client calls the hospital management API on behalf of a patient. It is safe
// for concurrent use; per-patient credentials travel in the request context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	observer   Observer
	validate   *validator.Validate
}

// New creates an API client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("portalapi: invalid base URL %q: %w", baseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		observer:   cfg.Observer,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// CheckSession resolves the identity behind the forwarded session cookie.
// GET /check-cookie
func (c *Client) CheckSession(ctx context.Context) (*Session, error) {
	var session Session
	if err := c.doJSON(ctx, "check_session", http.MethodGet, "/check-cookie", nil, &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, &APIError{Operation: "check_session", StatusCode: http.StatusUnauthorized, Message: "session has no user id"}
	}
	return &session, nil
}

// GetPatient fetches the patient profile. The endpoint answers with an array
// whose first element is the patient.
// GET /patient/{id}
func (c *Client) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	var patients []Patient
	path := "/patient/" + url.PathEscape(patientID)
	if err := c.doJSON(ctx, "get_patient", http.MethodGet, path, nil, &patients); err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return nil, ErrPatientNotFound
	}
	patient := patients[0]
	if patient.ID == "" {
		patient.ID = patientID
	}
	return &patient, nil
}

// GetCoverageStatus returns the latest coverage application. A user who never
// applied gets status None.
// GET /coverage/status/{userId}
func (c *Client) GetCoverageStatus(ctx context.Context, userID string) (*CoverageStatus, error) {
	var status *CoverageStatus
	path := "/coverage/status/" + url.PathEscape(userID)
	if err := c.doEnvelope(ctx, "coverage_status", http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	if status == nil {
		return &CoverageStatus{Status: CoverageNone}, nil
	}
	if status.Status == "" {
		status.Status = CoverageNone
	}
	return status, nil
}

// ApplyForCoverage files a coverage application for admin review.
// POST /coverage/apply
func (c *Client) ApplyForCoverage(ctx context.Context, app CoverageApplication) (*CoverageApplicationResult, error) {
	if err := c.validate.Struct(app); err != nil {
		return nil, fmt.Errorf("portalapi: invalid coverage application: %w", err)
	}
	var result CoverageApplicationResult
	if err := c.doEnvelope(ctx, "apply_coverage", http.MethodPost, "/coverage/apply", app, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ProcessPayment submits a payment with one of the details variants.
// POST /payments
func (c *Client) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if req.Details == nil {
		return nil, fmt.Errorf("portalapi: payment details are required")
	}
	if err := c.validate.Struct(req.Details); err != nil {
		return nil, fmt.Errorf("portalapi: invalid %s payment details: %w", req.Details.PaymentMethod(), err)
	}
	var result PaymentResult
	if err := c.doEnvelope(ctx, "process_payment", http.MethodPost, "/payments", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitCashReceipt files the receipt record of a cash deposit.
// POST /cash-receipts/submit
func (c *Client) SubmitCashReceipt(ctx context.Context, receipt CashReceipt) error {
	if err := c.validate.Struct(receipt); err != nil {
		return fmt.Errorf("portalapi: invalid cash receipt: %w", err)
	}
	return c.doEnvelope(ctx, "submit_cash_receipt", http.MethodPost, "/cash-receipts/submit", receipt, nil)
}

// Logout ends the API session. The returned cookies are the API's Set-Cookie
// headers and should be relayed to the browser.
// POST /logout
func (c *Client) Logout(ctx context.Context) ([]*http.Cookie, error) {
	resp, _, err := c.do(ctx, "logout", http.MethodPost, "/logout", nil)
	if err != nil {
		return nil, err
	}
	return resp.Cookies(), nil
}

// ListPayments returns the session user's payment history as sent by the API.
// GET /payments/user
func (c *Client) ListPayments(ctx context.Context) (json.RawMessage, error) {
	return c.doRaw(ctx, "list_payments", http.MethodGet, "/payments/user", nil)
}

// ListCashReceipts returns the user's submitted cash receipts.
// GET /cash-receipts/user/{userId}
func (c *Client) ListCashReceipts(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.doRaw(ctx, "list_cash_receipts", http.MethodGet, "/cash-receipts/user/"+url.PathEscape(userID), nil)
}

// ListDepartments returns every hospital department.
// GET /department
func (c *Client) ListDepartments(ctx context.Context) (json.RawMessage, error) {
	return c.doRaw(ctx, "list_departments", http.MethodGet, "/department", nil)
}

// ListDoctorsByDepartment returns the doctors of one department.
// GET /doctor/doctors/department/{department}
func (c *Client) ListDoctorsByDepartment(ctx context.Context, department string) (json.RawMessage, error) {
	path := "/doctor/doctors/department/" + url.PathEscape(department)
	return c.doRaw(ctx, "list_doctors", http.MethodGet, path, nil)
}

// GetAvailableSlots returns a doctor's free slots on a date (YYYY-MM-DD).
// GET /doctor/doctors/{doctorId}/slots?date={date}
func (c *Client) GetAvailableSlots(ctx context.Context, doctorID, date string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("date", date)
	path := fmt.Sprintf("/doctor/doctors/%s/slots?%s", url.PathEscape(doctorID), q.Encode())
	return c.doRaw(ctx, "available_slots", http.MethodGet, path, nil)
}

// CreateAppointment books an appointment.
// POST /appointment
func (c *Client) CreateAppointment(ctx context.Context, req AppointmentRequest) (json.RawMessage, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("portalapi: invalid appointment: %w", err)
	}
	return c.doRaw(ctx, "create_appointment", http.MethodPost, "/appointment", req)
}

// ListAppointmentsByPatient returns a patient's appointments.
// GET /appointment/patient/{patientId}
func (c *Client) ListAppointmentsByPatient(ctx context.Context, patientID string) (json.RawMessage, error) {
	return c.doRaw(ctx, "list_appointments", http.MethodGet, "/appointment/patient/"+url.PathEscape(patientID), nil)
}

// doEnvelope unwraps {success, data, message}. success=false is reported as an
// APIError even on a 2xx status.
func (c *Client) doEnvelope(ctx context.Context, op, method, path string, body, out any) error {
	var env envelope
	if err := c.doJSON(ctx, op, method, path, body, &env); err != nil {
		return err
	}
	if !env.Success {
		return &APIError{Operation: op, StatusCode: http.StatusOK, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("portalapi: %s: decode data: %w", op, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	_, respBody, err := c.do(ctx, op, method, path, body)
	if err != nil {
		return err
	}
	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("portalapi: %s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, op, method, path string, body any) (json.RawMessage, error) {
	_, respBody, err := c.do(ctx, op, method, path, body)
	if err != nil {
		return nil, err
	}
	if len(respBody) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("portalapi: %s: response is not JSON", op)
	}
	return json.RawMessage(respBody), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (*http.Response, []byte, error) {
	ctx, span := tracer.Start(ctx, "portalapi."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("portal.gateway.operation", op),
		attribute.String("http.method", method),
	)

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("portalapi: %s: marshal request: %w", op, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("portalapi: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookies, ok := SessionCookiesFromContext(ctx); ok {
		for _, cookie := range cookies {
			req.AddCookie(cookie)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, 0, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, nil, fmt.Errorf("portalapi: %s: http request: %w", op, err)
	}
	defer resp.Body.Close()
	c.observe(op, resp.StatusCode, start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("portalapi: %s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		c.logger.Warn("portal API non-2xx response", "operation", op, "status", resp.StatusCode, "path", path, "body", scrub(msg))
		return resp, nil, &APIError{Operation: op, StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return resp, respBody, nil
}

func (c *Client) observe(op string, status int, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveGatewayRequest(op, status, time.Since(start).Seconds())
}

// errorMessage pulls the message field out of an error body, if the body is a
// JSON object that has one.
func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	return parsed.Error
}
