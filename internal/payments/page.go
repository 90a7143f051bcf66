package payments

import (
	"strconv"
	"time"

	"github.com/wolfman30/patient-portal/internal/cardform"
	"github.com/wolfman30/patient-portal/internal/portalapi"
)

// State is the payment page lifecycle state.
type State string

const (
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
)

// ModalKind selects the modal's icon and tone.
type ModalKind string

const (
	ModalSuccess ModalKind = "success"
	ModalPending ModalKind = "pending"
	ModalError   ModalKind = "error"
	// ModalWarning marks a partial success: the payment went through but its
	// follow-up record did not.
	ModalWarning ModalKind = "warning"
)

// Modal is the single outcome dialog. Each new outcome overwrites it.
type Modal struct {
	IsOpen  bool      `json:"isOpen"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Kind    ModalKind `json:"kind"`
}

// User is the logged-in patient, loaded once at mount.
type User struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Gender      string `json:"gender,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// CoverageApplication is the coverage form.
type CoverageApplication struct {
	PolicyID     string `json:"policyId"`
	Provider     string `json:"provider"`
	CoverageType string `json:"coverageType"`
}

// complete reports whether every coverage field is filled.
func (c CoverageApplication) complete() bool {
	return c.PolicyID != "" && c.Provider != "" && c.CoverageType != ""
}

// CoverageStatus mirrors the server's view of the patient's coverage.
type CoverageStatus struct {
	Status        string `json:"status"`
	ApplicationID string `json:"applicationId,omitempty"`
	AdminNotes    string `json:"adminNotes,omitempty"`
}

// CashDetails is the cash deposit form. ReceiptNumber is generated at mount
// and is not editable.
type CashDetails struct {
	DepositReference string `json:"depositReference"`
	BankName         string `json:"bankName"`
	BranchName       string `json:"branchName"`
	DepositDate      string `json:"depositDate"`
	TransactionID    string `json:"transactionId"`
	ReceiptNumber    string `json:"receiptNumber"`
	Notes            string `json:"notes"`
}

// complete reports whether the fields required to submit are filled.
func (c CashDetails) complete() bool {
	return c.BankName != "" && c.TransactionID != "" && c.DepositReference != ""
}

// Page is the state of one mounted payment screen. Only the form matching
// ActiveTab is submitted; the others keep whatever was typed into them.
type Page struct {
	ID             string
	State          State
	User           *User
	ActiveTab      portalapi.PaymentMethod
	Loading        bool
	Modal          Modal
	Card           cardform.CardDetails
	CardErrors     cardform.Errors
	Coverage       CoverageApplication
	CoverageStatus CoverageStatus
	Cash           CashDetails
	MountedAt      time.Time
}

// newPage builds a page with the defaults every mount starts from.
func newPage(id string, now time.Time) *Page {
	return &Page{
		ID:             id,
		State:          StateLoading,
		ActiveTab:      portalapi.MethodCreditCard,
		Card:           cardform.NewCardDetails(),
		CoverageStatus: CoverageStatus{Status: portalapi.CoverageNone},
		Cash:           CashDetails{DepositDate: now.UTC().Format("2006-01-02")},
		MountedAt:      now,
	}
}

// applyIdentity stores the user and the identifiers derived from it.
func (p *Page) applyIdentity(user User) {
	p.User = &user
	p.Coverage.PolicyID = defaultPolicyID(user.ID)
	p.Cash.ReceiptNumber = receiptNumber(user.ID, p.MountedAt)
}

func (p *Page) showModal(title, message string, kind ModalKind) {
	p.Modal = Modal{IsOpen: true, Title: title, Message: message, Kind: kind}
}

func (p *Page) clone() *Page {
	cp := *p
	if p.User != nil {
		u := *p.User
		cp.User = &u
	}
	return &cp
}

func defaultPolicyID(userID string) string {
	return "POL-" + lastN(userID, 6)
}

func receiptNumber(userID string, mountedAt time.Time) string {
	millis := strconv.FormatInt(mountedAt.UnixMilli(), 10)
	return "RCP-" + lastN(userID, 6) + "-" + lastN(millis, 4)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// PageView is the JSON shape the browser renders.
type PageView struct {
	ID               string                  `json:"id"`
	State            State                   `json:"state"`
	User             *User                   `json:"user"`
	ActiveTab        portalapi.PaymentMethod `json:"activeTab"`
	IsLoading        bool                    `json:"isLoading"`
	Modal            Modal                   `json:"modal"`
	CreditCard       cardform.CardDetails    `json:"creditCardDetails"`
	CardErrors       cardform.Errors         `json:"cardValidationErrors"`
	CardValid        bool                    `json:"cardValid"`
	Coverage         CoverageApplication     `json:"coverageApplication"`
	CoverageStatus   CoverageStatus          `json:"coverageStatus"`
	CanApplyCoverage bool                    `json:"canApplyCoverage"`
	Cash             CashDetails             `json:"cashDetails"`
	PayEnabled       bool                    `json:"payEnabled"`
}

// View renders the page for the browser.
func (p *Page) View(now time.Time) PageView {
	coverageApproved := p.CoverageStatus.Status == portalapi.CoverageApproved
	return PageView{
		ID:               p.ID,
		State:            p.State,
		User:             p.User,
		ActiveTab:        p.ActiveTab,
		IsLoading:        p.Loading,
		Modal:            p.Modal,
		CreditCard:       p.Card,
		CardErrors:       p.CardErrors,
		CardValid:        p.Card.Valid(now),
		Coverage:         p.Coverage,
		CoverageStatus:   p.CoverageStatus,
		CanApplyCoverage: !p.Loading && p.CoverageStatus.Status == portalapi.CoverageNone && p.Coverage.complete(),
		Cash:             p.Cash,
		PayEnabled:       !p.Loading && (p.ActiveTab != portalapi.MethodCoverage || coverageApproved),
	}
}
