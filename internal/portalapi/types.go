// Package portalapi is the client for the hospital management API that backs
// the patient portal. There is one method per backend endpoint.
package portalapi

import (
	"encoding/json"
	"fmt"
)

// RolePatient is the only role allowed on the patient portal.
const RolePatient = "Patient"

// Session is the identity behind the forwarded cookie.
type Session struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Patient is the patient profile record.
type Patient struct {
	ID          string `json:"id,omitempty"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Gender      string `json:"gender"`
	UserName    string `json:"userName,omitempty"`
}

// Coverage application statuses reported by the API.
const (
	CoverageNone     = "None"
	CoveragePending  = "Pending"
	CoverageApproved = "Approved"
	CoverageDeclined = "Declined"
)

// CoverageStatus is the latest coverage application for a user.
type CoverageStatus struct {
	Status     string `json:"status"`
	ID         string `json:"id"`
	AdminNotes string `json:"adminNotes,omitempty"`
}

// CoverageApplication is the body of POST /coverage/apply.
type CoverageApplication struct {
	UserID       string `json:"userId" validate:"required"`
	PolicyID     string `json:"policyId" validate:"required"`
	Provider     string `json:"provider" validate:"required"`
	CoverageType string `json:"coverageType" validate:"required"`
}

// CoverageApplicationResult is returned after applying.
type CoverageApplicationResult struct {
	ID string `json:"id"`
}

// PaymentMethod tags the payment details variant.
type PaymentMethod string

const (
	MethodCoverage   PaymentMethod = "Coverage"
	MethodCreditCard PaymentMethod = "CreditCard"
	MethodCash       PaymentMethod = "Cash"
)

// ParsePaymentMethod maps a wire name to a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case MethodCoverage, MethodCreditCard, MethodCash:
		return m, nil
	}
	return "", fmt.Errorf("portalapi: unknown payment method %q", s)
}

// PaymentDetails is one of CoverageDetails, CardPayment or CashDeposit.
type PaymentDetails interface {
	PaymentMethod() PaymentMethod
}

// CoverageDetails pays through an approved insurance policy.
type CoverageDetails struct {
	PolicyID         string `json:"policyId" validate:"required"`
	ServiceReference string `json:"serviceReference" validate:"required"`
}

// CardPayment charges a credit or debit card.
type CardPayment struct {
	CardNumber     string `json:"cardNumber" validate:"required"`
	ExpiryDate     string `json:"expiryDate" validate:"required"`
	CVV            string `json:"cvv" validate:"required,min=3,max=4"`
	CardholderName string `json:"cardholderName" validate:"required"`
	CardType       string `json:"cardType"`
}

// CashDeposit records a cash deposit made at a bank.
type CashDeposit struct {
	DepositReference string `json:"depositReference" validate:"required"`
	BankName         string `json:"bankName" validate:"required"`
	BranchName       string `json:"branchName"`
	DepositDate      string `json:"depositDate"`
	TransactionID    string `json:"transactionId" validate:"required"`
}

func (CoverageDetails) PaymentMethod() PaymentMethod { return MethodCoverage }
func (CardPayment) PaymentMethod() PaymentMethod     { return MethodCreditCard }
func (CashDeposit) PaymentMethod() PaymentMethod     { return MethodCash }

// PaymentRequest is the body of POST /payments. The method tag always matches
// the details variant.
type PaymentRequest struct {
	Details PaymentDetails
}

func (p PaymentRequest) MarshalJSON() ([]byte, error) {
	if p.Details == nil {
		return nil, fmt.Errorf("portalapi: payment details are required")
	}
	return json.Marshal(struct {
		Method  PaymentMethod  `json:"method"`
		Details PaymentDetails `json:"details"`
	}{
		Method:  p.Details.PaymentMethod(),
		Details: p.Details,
	})
}

// PaymentResult is the data block of a successful payment.
type PaymentResult struct {
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transactionId,omitempty"`
	Status        string  `json:"status,omitempty"`
}

// CashReceipt is the body of POST /cash-receipts/submit.
type CashReceipt struct {
	UserID           string  `json:"userId" validate:"required"`
	PatientName      string  `json:"patientName"`
	PatientID        string  `json:"patientId" validate:"required"`
	PatientEmail     string  `json:"patientEmail"`
	PatientPhone     string  `json:"patientPhone"`
	Amount           float64 `json:"amount" validate:"gt=0"`
	DepositReference string  `json:"depositReference" validate:"required"`
	BankName         string  `json:"bankName" validate:"required"`
	BranchName       string  `json:"branchName"`
	DepositDate      string  `json:"depositDate"`
	TransactionID    string  `json:"transactionId" validate:"required"`
	ReceiptNumber    string  `json:"receiptNumber" validate:"required"`
	Notes            string  `json:"notes,omitempty"`
	PaymentSlipURL   string  `json:"paymentSlipUrl"`
}

// PatientDetails is the contact block attached to an appointment.
type PatientDetails struct {
	FullName          string `json:"fullName" validate:"required"`
	Email             string `json:"email" validate:"required,email"`
	Phone             string `json:"phone" validate:"required"`
	Address           string `json:"address,omitempty"`
	ReasonForVisit    string `json:"reasonForVisit,omitempty"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
}

// AppointmentRequest is the body of POST /appointment.
type AppointmentRequest struct {
	PatientID      string         `json:"patientId" validate:"required"`
	DoctorID       string         `json:"doctorId" validate:"required"`
	Department     string         `json:"department" validate:"required"`
	Date           string         `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot       string         `json:"timeSlot" validate:"required"`
	PatientDetails PatientDetails `json:"patientDetails"`
}

// envelope is the {success, data, message} wrapper most endpoints use.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}
