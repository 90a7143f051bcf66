package payments

import (
	"slices"

	"github.com/wolfman30/patient-portal/internal/portalapi"
)

// MethodOption describes one payment tab.
type MethodOption struct {
	Type        portalapi.PaymentMethod `json:"type"`
	Label       string                  `json:"label"`
	Description string                  `json:"description"`
}

// Catalog lists what the payment page offers.
type Catalog struct {
	Methods       []MethodOption `json:"paymentMethods"`
	Providers     []string       `json:"coverageProviders"`
	CoverageTypes []string       `json:"coverageTypes"`
}

var (
	paymentMethods = []MethodOption{
		{Type: portalapi.MethodCoverage, Label: "Healthcare Coverage", Description: "Use your insurance to cover the cost."},
		{Type: portalapi.MethodCreditCard, Label: "Credit Card", Description: "Pay with your credit or debit card."},
		{Type: portalapi.MethodCash, Label: "Cash Deposit", Description: "Submit cash payment receipt."},
	}
	coverageProviders = []string{"Blue Cross Blue Shield", "Aetna", "Cigna", "UnitedHealth"}
	coverageTypes     = []string{"Full", "Partial", "Emergency Only", "Dental", "Vision"}
)

// DefaultCatalog returns a copy of the supported options.
func DefaultCatalog() Catalog {
	return Catalog{
		Methods:       paymentMethods,
		Providers:     coverageProviders,
		CoverageTypes: coverageTypes,
	}.clone()
}

func (c Catalog) clone() Catalog {
	return Catalog{
		Methods:       slices.Clone(c.Methods),
		Providers:     slices.Clone(c.Providers),
		CoverageTypes: slices.Clone(c.CoverageTypes),
	}
}

// supportsCoverage reports whether provider and coverage type are both offered.
func (c Catalog) supportsCoverage(app CoverageApplication) bool {
	return slices.Contains(c.Providers, app.Provider) && slices.Contains(c.CoverageTypes, app.CoverageType)
}
