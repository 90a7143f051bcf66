package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/patient-portal/internal/cardform"
	"github.com/wolfman30/patient-portal/internal/portalapi"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

var tracer = otel.Tracer("portal.internal.payments")

var (
	// ErrUnauthenticated means the session is missing, expired or not a
	// patient's. Callers should send the browser to the login screen.
	ErrUnauthenticated = errors.New("payments: not authenticated")
	// ErrBusy means a submission is already in flight for the page.
	ErrBusy = errors.New("payments: submission in progress")
	// ErrInvalidField means the caller named a field or tab that does not exist.
	ErrInvalidField = errors.New("payments: invalid field")
)

const (
	defaultChargeAmount     = 55.00
	defaultServiceReference = "SRV-001"
	defaultReceiptTimeout   = 10 * time.Second
)

// Gateway is the subset of the portal API the payment page calls.
type Gateway interface {
	CheckSession(ctx context.Context) (*portalapi.Session, error)
	GetPatient(ctx context.Context, patientID string) (*portalapi.Patient, error)
	GetCoverageStatus(ctx context.Context, userID string) (*portalapi.CoverageStatus, error)
	ApplyForCoverage(ctx context.Context, app portalapi.CoverageApplication) (*portalapi.CoverageApplicationResult, error)
	ProcessPayment(ctx context.Context, req portalapi.PaymentRequest) (*portalapi.PaymentResult, error)
	SubmitCashReceipt(ctx context.Context, receipt portalapi.CashReceipt) error
}

// Metrics receives workflow counters. A nil Metrics is ignored.
type Metrics interface {
	ObserveSubmission(method, outcome string)
	SetActivePages(n int)
}

// Options wires a Workflow. Store and Gateway are required.
type Options struct {
	Store    PageStore
	Gateway  Gateway
	Guard    SubmitGuard
	Velocity VelocityLimiter
	Outcomes OutcomeRecorder
	Metrics  Metrics
	Logger   *logging.Logger
	Catalog  *Catalog

	// ChargeAmount is shown when the API reports no amount and is the amount
	// filed on cash receipts.
	ChargeAmount     float64
	ServiceReference string
	// ReceiptTimeout bounds the cash receipt write that follows a successful
	// cash payment. Defaults to 10s.
	ReceiptTimeout time.Duration
	Now            func() time.Time
}

// Workflow drives payment pages.
type Workflow struct {
	store      PageStore
	gateway    Gateway
	guard      SubmitGuard
	velocity   VelocityLimiter
	outcomes   OutcomeRecorder
	metrics    Metrics
	logger     *logging.Logger
	catalog    Catalog
	charge     float64
	serviceRef string
	receiptTTL time.Duration
	now        func() time.Time
	newID      func() string
}

// NewWorkflow validates opts and fills defaults.
func NewWorkflow(opts Options) (*Workflow, error) {
	if opts.Store == nil {
		return nil, errors.New("payments: page store is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("payments: gateway is required")
	}
	w := &Workflow{
		store:      opts.Store,
		gateway:    opts.Gateway,
		guard:      opts.Guard,
		velocity:   opts.Velocity,
		outcomes:   opts.Outcomes,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		catalog:    DefaultCatalog(),
		charge:     opts.ChargeAmount,
		serviceRef: opts.ServiceReference,
		receiptTTL: opts.ReceiptTimeout,
		now:        opts.Now,
		newID:      uuid.NewString,
	}
	if opts.Catalog != nil {
		w.catalog = *opts.Catalog
	}
	if w.guard == nil {
		w.guard = NewMemorySubmitGuard(30 * time.Second)
	}
	if w.outcomes == nil {
		w.outcomes = nopRecorder{}
	}
	if w.logger == nil {
		w.logger = logging.Default()
	}
	if w.charge <= 0 {
		w.charge = defaultChargeAmount
	}
	if w.serviceRef == "" {
		w.serviceRef = defaultServiceReference
	}
	if w.receiptTTL <= 0 {
		w.receiptTTL = defaultReceiptTimeout
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w, nil
}

// Catalog returns the payment methods and coverage options offered.
func (w *Workflow) Catalog() Catalog {
	return w.catalog.clone()
}

// Now returns the workflow clock, used to render views.
func (w *Workflow) Now() time.Time { return w.now() }

// Identity is the authenticated patient behind a request.
type Identity struct {
	PatientID string
	Role      string
	User      User
}

// Authenticate resolves the forwarded session to a patient. Any failure is
// reported as ErrUnauthenticated.
func (w *Workflow) Authenticate(ctx context.Context) (*Identity, error) {
	session, err := w.gateway.CheckSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: check session: %w", ErrUnauthenticated, err)
	}
	if session.Role != portalapi.RolePatient {
		return nil, fmt.Errorf("%w: role %q is not allowed", ErrUnauthenticated, session.Role)
	}
	patient, err := w.gateway.GetPatient(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load patient: %w", ErrUnauthenticated, err)
	}
	return &Identity{
		PatientID: session.ID,
		Role:      session.Role,
		User: User{
			ID:          session.ID,
			FirstName:   patient.FirstName,
			LastName:    patient.LastName,
			Email:       patient.Email,
			PhoneNumber: patient.PhoneNumber,
			Gender:      patient.Gender,
		},
	}, nil
}

// Mount authenticates, loads the coverage status and creates a page.
func (w *Workflow) Mount(ctx context.Context) (*Page, error) {
	ctx, span := tracer.Start(ctx, "portal.payments.mount")
	defer span.End()

	identity, err := w.Authenticate(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}
	span.SetAttributes(attribute.String("portal.patient_id", identity.PatientID))

	page := newPage(w.newID(), w.now())
	page.applyIdentity(identity.User)

	status, err := w.gateway.GetCoverageStatus(ctx, identity.PatientID)
	if err != nil {
		w.logger.Warn("coverage status unavailable, assuming none", "patient_id", identity.PatientID, "error", err)
	} else {
		page.CoverageStatus = fromAPIStatus(status)
	}
	page.State = StateReady

	if err := w.store.Create(page); err != nil {
		return nil, fmt.Errorf("payments: store page: %w", err)
	}
	w.reportActivePages()
	w.logger.Info("payment page mounted", "page_id", page.ID, "patient_id", identity.PatientID, "coverage_status", page.CoverageStatus.Status)
	return page, nil
}

// Get returns the current page state.
func (w *Workflow) Get(pageID string) (*Page, error) {
	return w.store.Get(pageID)
}

// Unmount discards the page.
func (w *Workflow) Unmount(pageID string) error {
	if err := w.store.Delete(pageID); err != nil {
		return err
	}
	w.reportActivePages()
	return nil
}

// SelectTab switches the active payment method. Other forms keep their data.
func (w *Workflow) SelectTab(pageID string, tab portalapi.PaymentMethod) (*Page, error) {
	method, err := portalapi.ParsePaymentMethod(string(tab))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidField, err)
	}
	return w.store.Update(pageID, func(p *Page) error {
		p.ActiveTab = method
		return nil
	})
}

// SetCardField formats and stores a card field, then validates it.
func (w *Workflow) SetCardField(pageID string, field cardform.Field, raw string) (*Page, error) {
	now := w.now()
	return w.store.Update(pageID, func(p *Page) error {
		value, err := p.Card.Apply(field, raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidField, err)
		}
		cardform.ValidateField(&p.CardErrors, field, value, now)
		return nil
	})
}

// BlurCardField validates a card field without changing it.
func (w *Workflow) BlurCardField(pageID string, field cardform.Field) (*Page, error) {
	now := w.now()
	return w.store.Update(pageID, func(p *Page) error {
		value, err := p.Card.Get(field)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidField, err)
		}
		cardform.ValidateField(&p.CardErrors, field, value, now)
		return nil
	})
}

// CoveragePatch carries the coverage fields to replace. Nil fields are kept.
type CoveragePatch struct {
	PolicyID     *string
	Provider     *string
	CoverageType *string
}

// SetCoverageFields replaces the given coverage form fields.
func (w *Workflow) SetCoverageFields(pageID string, patch CoveragePatch) (*Page, error) {
	return w.store.Update(pageID, func(p *Page) error {
		setIf(&p.Coverage.PolicyID, patch.PolicyID)
		setIf(&p.Coverage.Provider, patch.Provider)
		setIf(&p.Coverage.CoverageType, patch.CoverageType)
		return nil
	})
}

// CashPatch carries the cash fields to replace. The receipt number is not
// editable.
type CashPatch struct {
	DepositReference *string
	BankName         *string
	BranchName       *string
	DepositDate      *string
	TransactionID    *string
	Notes            *string
}

// SetCashFields replaces the given cash form fields.
func (w *Workflow) SetCashFields(pageID string, patch CashPatch) (*Page, error) {
	return w.store.Update(pageID, func(p *Page) error {
		setIf(&p.Cash.DepositReference, patch.DepositReference)
		setIf(&p.Cash.BankName, patch.BankName)
		setIf(&p.Cash.BranchName, patch.BranchName)
		setIf(&p.Cash.DepositDate, patch.DepositDate)
		setIf(&p.Cash.TransactionID, patch.TransactionID)
		setIf(&p.Cash.Notes, patch.Notes)
		return nil
	})
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// DismissModal closes the outcome dialog.
func (w *Workflow) DismissModal(pageID string) (*Page, error) {
	return w.store.Update(pageID, func(p *Page) error {
		p.Modal = Modal{}
		return nil
	})
}

// ApplyForCoverage files the coverage form. Blocked preconditions and API
// failures are reported through the page modal, not the returned error.
func (w *Workflow) ApplyForCoverage(ctx context.Context, pageID string) (*Page, error) {
	ctx, span := tracer.Start(ctx, "portal.payments.apply_coverage")
	defer span.End()
	span.SetAttributes(attribute.String("portal.page_id", pageID))

	release, err := w.acquire(ctx, pageID)
	if err != nil {
		return nil, err
	}
	defer release()

	var app *portalapi.CoverageApplication
	page, err := w.store.Update(pageID, func(p *Page) error {
		if p.Loading {
			return ErrBusy
		}
		switch {
		case p.User == nil || p.User.ID == "":
			p.showModal("Error", "User ID is missing.", ModalError)
		case !p.Coverage.complete():
			p.showModal("Error", "Please fill in all coverage fields.", ModalError)
		case !w.catalog.supportsCoverage(p.Coverage):
			p.showModal("Error", "Please select a supported provider and coverage type.", ModalError)
		case p.CoverageStatus.Status != portalapi.CoverageNone:
			p.showModal("Error", "A coverage application is already on file.", ModalError)
		default:
			app = &portalapi.CoverageApplication{
				UserID:       p.User.ID,
				PolicyID:     p.Coverage.PolicyID,
				Provider:     p.Coverage.Provider,
				CoverageType: p.Coverage.CoverageType,
			}
			p.Loading = true
			p.State = StateSubmitting
		}
		return nil
	})
	if err != nil || app == nil {
		return page, err
	}

	result, applyErr := w.gateway.ApplyForCoverage(ctx, *app)
	if applyErr != nil {
		span.RecordError(applyErr)
		span.SetStatus(codes.Error, "apply coverage failed")
		w.logger.Warn("coverage application failed", "page_id", pageID, "patient_id", app.UserID, "error", applyErr)
	}

	page, err = w.store.Update(pageID, func(p *Page) error {
		p.Loading = false
		p.State = StateReady
		switch {
		case applyErr == nil:
			p.CoverageStatus = CoverageStatus{Status: portalapi.CoveragePending, ApplicationID: result.ID}
			p.showModal("Application Submitted", "Your healthcare coverage application is pending admin approval.", ModalPending)
		case portalapi.IsRejection(applyErr):
			p.showModal("Error", serverMessageOr(applyErr, "Failed to apply for coverage."), ModalError)
		default:
			p.showModal("Error", "Error applying for coverage.", ModalError)
		}
		return nil
	})
	if errors.Is(err, ErrPageNotFound) {
		w.logger.Info("page unmounted during coverage application", "page_id", pageID)
	}
	return page, err
}

// RefreshCoverage re-reads the coverage status, picking up an approval made
// since mount. On failure the current status is kept and the error returned.
func (w *Workflow) RefreshCoverage(ctx context.Context, pageID string) (*Page, error) {
	page, err := w.store.Get(pageID)
	if err != nil {
		return nil, err
	}
	if page.User == nil {
		return nil, ErrUnauthenticated
	}
	status, err := w.gateway.GetCoverageStatus(ctx, page.User.ID)
	if err != nil {
		return nil, fmt.Errorf("payments: refresh coverage: %w", err)
	}
	return w.store.Update(pageID, func(p *Page) error {
		p.CoverageStatus = fromAPIStatus(status)
		return nil
	})
}

// attempt is what Submit carries from the locked check to the gateway call.
type attempt struct {
	patientID string
	method    portalapi.PaymentMethod
	request   portalapi.PaymentRequest
	receipt   *portalapi.CashReceipt
}

// result is what Submit carries back to apply to the page.
type result struct {
	title, message string
	kind           ModalKind
	status         OutcomeStatus
	amount         float64
	resetCard      bool
	err            error
}

// Submit pays with the active method. The outcome is reported through the
// page modal; the returned error is reserved for missing pages, busy pages
// and guard failures.
func (w *Workflow) Submit(ctx context.Context, pageID string) (*Page, error) {
	ctx, span := tracer.Start(ctx, "portal.payments.submit")
	defer span.End()
	span.SetAttributes(attribute.String("portal.page_id", pageID))

	release, err := w.acquire(ctx, pageID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		pending  *attempt
		rejected *result
		method   portalapi.PaymentMethod
		patient  string
	)
	page, err := w.store.Update(pageID, func(p *Page) error {
		if p.Loading {
			return ErrBusy
		}
		method = p.ActiveTab
		if p.User != nil {
			patient = p.User.ID
		}
		pending, rejected = w.prepare(p)
		if rejected != nil {
			p.showModal(rejected.title, rejected.message, rejected.kind)
			return nil
		}
		p.Loading = true
		p.State = StateSubmitting
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("portal.payment_method", string(method)))
	if rejected != nil {
		w.finish(ctx, pageID, patient, method, *rejected)
		return page, nil
	}

	res := w.execute(ctx, pending)
	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, string(res.status))
	}

	page, err = w.store.Update(pageID, func(p *Page) error {
		p.Loading = false
		p.State = StateReady
		p.showModal(res.title, res.message, res.kind)
		if res.resetCard {
			p.Card = cardform.NewCardDetails()
			p.CardErrors = cardform.Errors{}
		}
		return nil
	})
	w.finish(ctx, pageID, patient, method, res)
	if errors.Is(err, ErrPageNotFound) {
		w.logger.Info("page unmounted during payment, result discarded", "page_id", pageID, "outcome", res.status)
	}
	return page, err
}

// prepare checks the preconditions of the active tab and builds the request.
// Exactly one of the returns is non-nil.
func (w *Workflow) prepare(p *Page) (*attempt, *result) {
	reject := func(title, message string) *result {
		return &result{title: title, message: message, kind: ModalError, status: OutcomeRejected}
	}
	if p.User == nil || p.User.ID == "" {
		return nil, reject("Error", "User not authenticated.")
	}

	a := &attempt{patientID: p.User.ID, method: p.ActiveTab}
	switch p.ActiveTab {
	case portalapi.MethodCoverage:
		if p.CoverageStatus.Status != portalapi.CoverageApproved {
			return nil, reject("Coverage Required", "Your healthcare coverage must be approved first.")
		}
		if p.Coverage.PolicyID == "" {
			return nil, reject("Missing Information", "Please enter your policy ID.")
		}
		a.request.Details = portalapi.CoverageDetails{
			PolicyID:         p.Coverage.PolicyID,
			ServiceReference: w.serviceRef,
		}
	case portalapi.MethodCreditCard:
		if !p.Card.Valid(w.now()) {
			return nil, reject("Invalid Card", "Please check your credit card details.")
		}
		a.request.Details = portalapi.CardPayment{
			CardNumber:     p.Card.CardNumber,
			ExpiryDate:     p.Card.ExpiryDate,
			CVV:            p.Card.CVV,
			CardholderName: p.Card.CardholderName,
			CardType:       p.Card.CardType,
		}
	case portalapi.MethodCash:
		if !p.Cash.complete() {
			return nil, reject("Missing Information", "Please fill in all required cash payment fields.")
		}
		a.request.Details = portalapi.CashDeposit{
			DepositReference: p.Cash.DepositReference,
			BankName:         p.Cash.BankName,
			BranchName:       p.Cash.BranchName,
			DepositDate:      p.Cash.DepositDate,
			TransactionID:    p.Cash.TransactionID,
		}
		a.receipt = &portalapi.CashReceipt{
			UserID:           p.User.ID,
			PatientName:      p.User.FullName(),
			PatientID:        p.User.ID,
			PatientEmail:     p.User.Email,
			PatientPhone:     p.User.PhoneNumber,
			Amount:           w.charge,
			DepositReference: p.Cash.DepositReference,
			BankName:         p.Cash.BankName,
			BranchName:       p.Cash.BranchName,
			DepositDate:      p.Cash.DepositDate,
			TransactionID:    p.Cash.TransactionID,
			ReceiptNumber:    p.Cash.ReceiptNumber,
			Notes:            p.Cash.Notes,
		}
	default:
		return nil, reject("Error", "Please select a payment method.")
	}
	return a, nil
}

// execute calls the gateway for a prepared attempt. The page is not locked.
func (w *Workflow) execute(ctx context.Context, a *attempt) result {
	if w.velocity != nil {
		check, err := w.velocity.CheckPaymentVelocity(ctx, a.patientID)
		if err == nil && check != nil && !check.Allowed {
			return result{
				title:   "Too Many Attempts",
				message: "Too many payment attempts. Please try again later.",
				kind:    ModalError,
				status:  OutcomeThrottled,
			}
		}
	}

	paid, err := w.gateway.ProcessPayment(ctx, a.request)
	if err != nil {
		if portalapi.IsRejection(err) {
			return result{
				title:   "Payment Failed",
				message: serverMessageOr(err, "Payment processing failed."),
				kind:    ModalError,
				status:  OutcomeFailed,
				err:     err,
			}
		}
		return result{
			title:   "Error",
			message: "An error occurred during payment.",
			kind:    ModalError,
			status:  OutcomeError,
			err:     err,
		}
	}

	amount := paid.Amount
	if amount == 0 {
		amount = w.charge
	}
	res := result{
		title:     "Payment Successful",
		message:   fmt.Sprintf("Your payment of $%s has been processed.", formatAmount(amount)),
		kind:      ModalSuccess,
		status:    OutcomeSucceeded,
		amount:    amount,
		resetCard: a.method == portalapi.MethodCreditCard,
	}

	if a.receipt != nil {
		// The deposit is already recorded, so the receipt must not die with
		// the browser request.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.receiptTTL)
		err := w.gateway.SubmitCashReceipt(rctx, *a.receipt)
		cancel()
		if err != nil {
			res.title = "Payment Recorded"
			res.message = "Your payment was processed, but the deposit receipt could not be filed. " +
				"Please contact billing with receipt number " + a.receipt.ReceiptNumber + "."
			res.kind = ModalWarning
			res.status = OutcomeReceiptFailed
			res.err = err
		}
	}
	return res
}

// finish records the outcome of a submit attempt.
func (w *Workflow) finish(ctx context.Context, pageID, patientID string, method portalapi.PaymentMethod, res result) {
	if w.metrics != nil {
		w.metrics.ObserveSubmission(string(method), string(res.status))
	}
	args := []any{"page_id", pageID, "patient_id", patientID, "method", method, "outcome", res.status}
	if res.err != nil {
		args = append(args, "error", res.err)
	}
	switch res.status {
	case OutcomeSucceeded:
		w.logger.Info("payment submitted", args...)
	case OutcomeRejected:
		w.logger.Debug("payment blocked locally", append(args, "reason", res.title)...)
	default:
		w.logger.Warn("payment not completed", args...)
	}

	err := w.outcomes.Record(context.WithoutCancel(ctx), Outcome{
		ID:        uuid.New(),
		PageID:    pageID,
		PatientID: patientID,
		Method:    method,
		Status:    res.status,
		Amount:    res.amount,
		Message:   res.message,
		CreatedAt: w.now().UTC(),
	})
	if err != nil {
		w.logger.Warn("failed to record payment outcome", "page_id", pageID, "error", err)
	}
}

// acquire takes the submit guard for a page. When the guard itself fails the
// page's loading flag still rejects duplicates within this process.
func (w *Workflow) acquire(ctx context.Context, pageID string) (func(), error) {
	ok, err := w.guard.Acquire(ctx, pageID)
	if err != nil {
		w.logger.Warn("submit guard unavailable", "page_id", pageID, "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() {
		if err := w.guard.Release(context.WithoutCancel(ctx), pageID); err != nil {
			w.logger.Warn("failed to release submit guard", "page_id", pageID, "error", err)
		}
	}, nil
}

func (w *Workflow) reportActivePages() {
	if w.metrics != nil {
		w.metrics.SetActivePages(w.store.Len())
	}
}

func fromAPIStatus(s *portalapi.CoverageStatus) CoverageStatus {
	if s == nil || s.Status == "" {
		return CoverageStatus{Status: portalapi.CoverageNone}
	}
	return CoverageStatus{Status: s.Status, ApplicationID: s.ID, AdminNotes: s.AdminNotes}
}

func serverMessageOr(err error, fallback string) string {
	if msg, ok := portalapi.ServerMessage(err); ok {
		return msg
	}
	return fallback
}

// formatAmount renders an amount rounded to cents in its shortest form:
// 55, 120.5.
func formatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).Round(2).String()
}
