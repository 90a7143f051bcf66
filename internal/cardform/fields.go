package cardform

import (
	"fmt"
	"strings"
	"time"
)

// Field names a credit card input.
type Field string

const (
	FieldCardNumber     Field = "cardNumber"
	FieldExpiryDate     Field = "expiryDate"
	FieldCVV            Field = "cvv"
	FieldCardholderName Field = "cardholderName"
	FieldCardType       Field = "cardType"
)

// DefaultCardType is preselected on a fresh form.
const DefaultCardType = "Visa"

// CardDetails holds what the patient typed into the card form. CardNumber is
// always stored in its grouped form.
type CardDetails struct {
	CardNumber     string `json:"cardNumber"`
	ExpiryDate     string `json:"expiryDate"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholderName"`
	CardType       string `json:"cardType"`
}

// NewCardDetails returns an empty form with the default card type.
func NewCardDetails() CardDetails {
	return CardDetails{CardType: DefaultCardType}
}

// Valid reports whether every validated field passes.
func (c CardDetails) Valid(now time.Time) bool {
	return ValidateCardNumber(c.CardNumber) &&
		ValidateExpiryDate(c.ExpiryDate, now) &&
		ValidCVV(c.CVV) &&
		strings.TrimSpace(c.CardholderName) != ""
}

// Get returns the stored value of a field.
func (c CardDetails) Get(field Field) (string, error) {
	switch field {
	case FieldCardNumber:
		return c.CardNumber, nil
	case FieldExpiryDate:
		return c.ExpiryDate, nil
	case FieldCVV:
		return c.CVV, nil
	case FieldCardholderName:
		return c.CardholderName, nil
	case FieldCardType:
		return c.CardType, nil
	}
	return "", fmt.Errorf("cardform: unknown field %q", field)
}

// Apply runs the field's change formatter on raw input and stores the result,
// returning the stored value. Other fields are left as they are.
func (c *CardDetails) Apply(field Field, raw string) (string, error) {
	var value string
	switch field {
	case FieldCardNumber:
		value = FormatCardNumber(raw)
		c.CardNumber = value
	case FieldExpiryDate:
		value = FormatExpiryDate(raw)
		c.ExpiryDate = value
	case FieldCVV:
		value = SanitizeCVV(raw)
		c.CVV = value
	case FieldCardholderName:
		value = raw
		c.CardholderName = value
	case FieldCardType:
		value = strings.TrimSpace(raw)
		if value == "" {
			value = DefaultCardType
		}
		c.CardType = value
	default:
		return "", fmt.Errorf("cardform: unknown field %q", field)
	}
	return value, nil
}

// Errors carries one message per validated field. Empty means valid.
type Errors struct {
	CardNumber     string `json:"cardNumber"`
	ExpiryDate     string `json:"expiryDate"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholderName"`
}

// Set replaces the message for one field.
func (e *Errors) Set(field Field, msg string) {
	switch field {
	case FieldCardNumber:
		e.CardNumber = msg
	case FieldExpiryDate:
		e.ExpiryDate = msg
	case FieldCVV:
		e.CVV = msg
	case FieldCardholderName:
		e.CardholderName = msg
	}
}

// Empty reports whether no field currently carries an error.
func (e Errors) Empty() bool {
	return e == Errors{}
}

// Validator turns a field value into an error message, or "" when valid.
type Validator func(value string, now time.Time) string

var validators = map[Field]Validator{
	FieldCardNumber: func(value string, _ time.Time) string {
		if value == "" {
			return "Card number is required"
		}
		if !ValidateCardNumber(value) {
			return "Please enter a valid 13-19 digit card number"
		}
		return ""
	},
	FieldExpiryDate: func(value string, now time.Time) string {
		if value == "" {
			return "Expiry date is required"
		}
		if !ValidateExpiryDate(value, now) {
			return "Please enter a valid expiry date (MM/YY)"
		}
		return ""
	},
	FieldCVV: func(value string, _ time.Time) string {
		if value == "" {
			return "CVV is required"
		}
		if !ValidCVV(value) {
			return "CVV must be 3-4 digits"
		}
		return ""
	},
	FieldCardholderName: func(value string, _ time.Time) string {
		if strings.TrimSpace(value) == "" {
			return "Cardholder name is required"
		}
		return ""
	},
}

// ValidatorFor returns the validator registered for a field. The card type has
// none.
func ValidatorFor(field Field) (Validator, bool) {
	v, ok := validators[field]
	return v, ok
}

// ValidateField checks one field and records the outcome in errs. It returns
// true when the field is valid or has no validator.
func ValidateField(errs *Errors, field Field, value string, now time.Time) bool {
	v, ok := ValidatorFor(field)
	if !ok {
		return true
	}
	msg := v(value, now)
	errs.Set(field, msg)
	return msg == ""
}

// ParseField maps a wire name to a Field.
func ParseField(name string) (Field, error) {
	f := Field(strings.TrimSpace(name))
	switch f {
	case FieldCardNumber, FieldExpiryDate, FieldCVV, FieldCardholderName, FieldCardType:
		return f, nil
	}
	return "", fmt.Errorf("cardform: unknown field %q", name)
}
