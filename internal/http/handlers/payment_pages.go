package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/patient-portal/internal/cardform"
	httpmiddleware "github.com/wolfman30/patient-portal/internal/http/middleware"
	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/internal/portalapi"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

// loginPath is where the browser goes when the portal session is gone.
const loginPath = "/login"

// PaymentPagesHandler exposes the payment page workflow to the browser.
type PaymentPagesHandler struct {
	workflow    *payments.Workflow
	tokenSecret string
	tokenTTL    time.Duration
	validate    *validator.Validate
	logger      *logging.Logger
}

// NewPaymentPagesHandler creates the handler. Page tokens are signed with
// tokenSecret and live for tokenTTL.
func NewPaymentPagesHandler(workflow *payments.Workflow, tokenSecret string, tokenTTL time.Duration, logger *logging.Logger) *PaymentPagesHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = 2 * time.Hour
	}
	return &PaymentPagesHandler{
		workflow:    workflow,
		tokenSecret: tokenSecret,
		tokenTTL:    tokenTTL,
		validate:    newValidator(),
		logger:      logger,
	}
}

// MountResponse is returned when a payment page is created.
type MountResponse struct {
	Token string           `json:"token"`
	Page  payments.PageView `json:"page"`
}

type tabRequest struct {
	Tab string `json:"tab" validate:"required,oneof=Coverage CreditCard Cash"`
}

type cardFieldRequest struct {
	Field string `json:"field" validate:"required,oneof=cardNumber expiryDate cvv cardholderName cardType"`
	Value string `json:"value" validate:"max=64"`
}

type cardBlurRequest struct {
	Field string `json:"field" validate:"required,oneof=cardNumber expiryDate cvv cardholderName cardType"`
}

type coverageFieldsRequest struct {
	PolicyID     *string `json:"policyId" validate:"omitempty,max=64"`
	Provider     *string `json:"provider" validate:"omitempty,max=64"`
	CoverageType *string `json:"coverageType" validate:"omitempty,max=64"`
}

type cashFieldsRequest struct {
	DepositReference *string `json:"depositReference" validate:"omitempty,max=64"`
	BankName         *string `json:"bankName" validate:"omitempty,max=128"`
	BranchName       *string `json:"branchName" validate:"omitempty,max=128"`
	DepositDate      *string `json:"depositDate" validate:"omitempty,datetime=2006-01-02"`
	TransactionID    *string `json:"transactionId" validate:"omitempty,max=64"`
	Notes            *string `json:"notes" validate:"omitempty,max=500"`
}

// Mount creates a page for the session behind the forwarded cookie.
// POST /api/payment-pages
func (h *PaymentPagesHandler) Mount(w http.ResponseWriter, r *http.Request) {
	page, err := h.workflow.Mount(r.Context())
	if err != nil {
		h.writeError(w, "", err)
		return
	}
	token, err := httpmiddleware.IssuePageToken(h.tokenSecret, page.User.ID, page.ID, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to issue page token", "page_id", page.ID, "error", err)
		_ = h.workflow.Unmount(page.ID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, MountResponse{Token: token, Page: page.View(h.workflow.Now())})
}

// Get returns the page view.
// GET /api/payment-pages/{pageID}
func (h *PaymentPagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	page, err := h.workflow.Get(pageID)
	h.respond(w, pageID, page, err)
}

// Unmount discards the page.
// DELETE /api/payment-pages/{pageID}
func (h *PaymentPagesHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	if err := h.workflow.Unmount(pageID); err != nil {
		h.writeError(w, pageID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectTab switches the payment method.
// PUT /api/payment-pages/{pageID}/tab
func (h *PaymentPagesHandler) SelectTab(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	var req tabRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	page, err := h.workflow.SelectTab(pageID, portalapi.PaymentMethod(req.Tab))
	h.respond(w, pageID, page, err)
}

// SetCardField handles a change in the card form.
// PATCH /api/payment-pages/{pageID}/card
func (h *PaymentPagesHandler) SetCardField(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	var req cardFieldRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	page, err := h.workflow.SetCardField(pageID, cardform.Field(req.Field), req.Value)
	h.respond(w, pageID, page, err)
}

// BlurCardField validates a card field when it loses focus.
// POST /api/payment-pages/{pageID}/card/blur
func (h *PaymentPagesHandler) BlurCardField(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	var req cardBlurRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	page, err := h.workflow.BlurCardField(pageID, cardform.Field(req.Field))
	h.respond(w, pageID, page, err)
}

// SetCoverageFields updates the coverage form.
// PATCH /api/payment-pages/{pageID}/coverage
func (h *PaymentPagesHandler) SetCoverageFields(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	var req coverageFieldsRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	page, err := h.workflow.SetCoverageFields(pageID, payments.CoveragePatch{
		PolicyID:     req.PolicyID,
		Provider:     req.Provider,
		CoverageType: req.CoverageType,
	})
	h.respond(w, pageID, page, err)
}

// SetCashFields updates the cash deposit form.
// PATCH /api/payment-pages/{pageID}/cash
func (h *PaymentPagesHandler) SetCashFields(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	var req cashFieldsRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	page, err := h.workflow.SetCashFields(pageID, payments.CashPatch{
		DepositReference: req.DepositReference,
		BankName:         req.BankName,
		BranchName:       req.BranchName,
		DepositDate:      req.DepositDate,
		TransactionID:    req.TransactionID,
		Notes:            req.Notes,
	})
	h.respond(w, pageID, page, err)
}

// ApplyForCoverage files the coverage application.
// POST /api/payment-pages/{pageID}/coverage/apply
func (h *PaymentPagesHandler) ApplyForCoverage(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	page, err := h.workflow.ApplyForCoverage(r.Context(), pageID)
	h.respond(w, pageID, page, err)
}

// RefreshCoverage re-reads the coverage status.
// POST /api/payment-pages/{pageID}/coverage/refresh
func (h *PaymentPagesHandler) RefreshCoverage(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	page, err := h.workflow.RefreshCoverage(r.Context(), pageID)
	h.respond(w, pageID, page, err)
}

// Submit pays with the active method. Outcomes come back in the page modal.
// POST /api/payment-pages/{pageID}/submit
func (h *PaymentPagesHandler) Submit(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	page, err := h.workflow.Submit(r.Context(), pageID)
	h.respond(w, pageID, page, err)
}

// DismissModal closes the outcome dialog.
// POST /api/payment-pages/{pageID}/modal/dismiss
func (h *PaymentPagesHandler) DismissModal(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	page, err := h.workflow.DismissModal(pageID)
	h.respond(w, pageID, page, err)
}

// PaymentMethods lists the payment methods and coverage options.
// GET /api/payment-methods
func (h *PaymentPagesHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.workflow.Catalog())
}

func (h *PaymentPagesHandler) respond(w http.ResponseWriter, pageID string, page *payments.Page, err error) {
	if err != nil {
		h.writeError(w, pageID, err)
		return
	}
	writeJSON(w, http.StatusOK, page.View(h.workflow.Now()))
}

func (h *PaymentPagesHandler) writeError(w http.ResponseWriter, pageID string, err error) {
	switch {
	case errors.Is(err, payments.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated", "redirect": loginPath})
	case errors.Is(err, payments.ErrPageNotFound):
		jsonError(w, "payment page not found", http.StatusNotFound)
	case errors.Is(err, payments.ErrBusy):
		jsonError(w, "a submission is already in progress", http.StatusConflict)
	case errors.Is(err, payments.ErrInvalidField):
		jsonError(w, strings.TrimPrefix(err.Error(), "payments: "), http.StatusBadRequest)
	case portalapi.IsRejection(err):
		h.logger.Warn("portal api rejected request", "page_id", pageID, "error", err)
		jsonError(w, "portal api error", http.StatusBadGateway)
	default:
		h.logger.Error("payment page request failed", "page_id", pageID, "error", err)
		jsonError(w, "portal api unavailable", http.StatusBadGateway)
	}
}
