package cardform

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var october2026 = time.Date(2026, time.October, 14, 9, 30, 0, 0, time.UTC)

func TestFormatCardNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"short digits stay bare", "411", "411"},
		{"four digits", "4111", "4111"},
		{"groups of four", "4111111111111111", "4111 1111 1111 1111"},
		{"partial last group", "411111111", "4111 1111 1"},
		{"strips letters and dashes", "4111-1111-abcd-1111", "4111 1111 1111"},
		{"truncates to sixteen digits", "41111111111111112222", "4111 1111 1111 1111"},
		{"collapses spacing", " 4111  1111 ", "4111 1111"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCardNumber(tt.input))
		})
	}
}

func TestFormatCardNumber_Idempotent(t *testing.T) {
	inputs := []string{"", "4", "4111", "41111", "4111111111111111", "5500 0000 0000 0004", "12345678901234567890"}
	for _, in := range inputs {
		once := FormatCardNumber(in)
		assert.Equal(t, once, FormatCardNumber(once), "input %q", in)
	}
}

func TestFormatExpiryDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"1", "1"},
		{"12", "12/"},
		{"122", "12/2"},
		{"1225", "12/25"},
		{"12/25", "12/25"},
		{"122599", "12/25"},
		{"ab12cd3", "12/3"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatExpiryDate(tt.input), "input %q", tt.input)
	}
}

func TestSanitizeCVV(t *testing.T) {
	assert.Equal(t, "123", SanitizeCVV("1a2b3"))
	assert.Equal(t, "1234", SanitizeCVV("123456"))
	assert.Equal(t, "", SanitizeCVV("abc"))
}

func TestValidateCardNumber_Lengths(t *testing.T) {
	for n := 1; n <= 25; n++ {
		digits := strings.Repeat("4", n)
		want := n >= 13 && n <= 19
		assert.Equal(t, want, ValidateCardNumber(digits), "length %d", n)
	}
}

func TestValidateCardNumber_SpacesOptional(t *testing.T) {
	assert.True(t, ValidateCardNumber("4111 1111 1111 1111"))
	assert.True(t, ValidateCardNumber("4111111111111"))
	assert.False(t, ValidateCardNumber("4111 1111 1111 111a"))
	assert.False(t, ValidateCardNumber(""))
}

func TestValidateExpiryDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"far future", "00/99", true},
		{"past year", "13/25", false},
		{"current month", "10/26", true},
		{"previous month", "09/26", false},
		{"next year", "01/27", true},
		{"missing year", "12/", false},
		{"missing month", "/27", false},
		{"no slash", "1227", false},
		{"non numeric", "ab/cd", false},
		// Months above 12 are not rejected.
		{"unbounded month in future year", "13/30", true},
		{"unbounded month in current year", "99/26", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateExpiryDate(tt.input, october2026))
		})
	}
}

func TestValidateExpiryDate_BeforeCenturyRollover(t *testing.T) {
	now := time.Date(2098, time.December, 31, 0, 0, 0, 0, time.UTC)
	assert.True(t, ValidateExpiryDate("00/99", now))
}

func TestValidateField_Messages(t *testing.T) {
	tests := []struct {
		field Field
		value string
		want  string
	}{
		{FieldCardNumber, "", "Card number is required"},
		{FieldCardNumber, "4111 1111", "Please enter a valid 13-19 digit card number"},
		{FieldCardNumber, "4111 1111 1111 1111", ""},
		{FieldExpiryDate, "", "Expiry date is required"},
		{FieldExpiryDate, "01/20", "Please enter a valid expiry date (MM/YY)"},
		{FieldExpiryDate, "11/26", ""},
		{FieldCVV, "", "CVV is required"},
		{FieldCVV, "12", "CVV must be 3-4 digits"},
		{FieldCVV, "1234", ""},
		{FieldCardholderName, "   ", "Cardholder name is required"},
		{FieldCardholderName, "John Doe", ""},
	}

	for _, tt := range tests {
		var errs Errors
		ok := ValidateField(&errs, tt.field, tt.value, october2026)
		assert.Equal(t, tt.want == "", ok, "%s=%q", tt.field, tt.value)

		got := map[Field]string{
			FieldCardNumber:     errs.CardNumber,
			FieldExpiryDate:     errs.ExpiryDate,
			FieldCVV:            errs.CVV,
			FieldCardholderName: errs.CardholderName,
		}[tt.field]
		assert.Equal(t, tt.want, got, "%s=%q", tt.field, tt.value)
	}
}

func TestValidateField_IndependentPerField(t *testing.T) {
	errs := Errors{CVV: "CVV is required"}
	ValidateField(&errs, FieldCardNumber, "", october2026)

	assert.Equal(t, "Card number is required", errs.CardNumber)
	assert.Equal(t, "CVV is required", errs.CVV, "other fields keep their messages")
}

func TestValidateField_CardTypeHasNoValidator(t *testing.T) {
	var errs Errors
	assert.True(t, ValidateField(&errs, FieldCardType, "", october2026))
	assert.True(t, errs.Empty())
}

func TestCardDetailsApply(t *testing.T) {
	card := NewCardDetails()

	stored, err := card.Apply(FieldCardNumber, "4111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "4111 1111 1111 1111", stored)

	_, err = card.Apply(FieldExpiryDate, "1127")
	require.NoError(t, err)
	_, err = card.Apply(FieldCVV, "12a3")
	require.NoError(t, err)
	_, err = card.Apply(FieldCardholderName, "John Doe")
	require.NoError(t, err)

	assert.Equal(t, CardDetails{
		CardNumber:     "4111 1111 1111 1111",
		ExpiryDate:     "11/27",
		CVV:            "123",
		CardholderName: "John Doe",
		CardType:       "Visa",
	}, card)
	assert.True(t, card.Valid(october2026))

	_, err = card.Apply(Field("pin"), "0000")
	require.Error(t, err)
}

func TestCardDetailsValid_RejectsEachBadField(t *testing.T) {
	good := CardDetails{
		CardNumber:     "4111 1111 1111 1111",
		ExpiryDate:     "11/26",
		CVV:            "123",
		CardholderName: "John Doe",
		CardType:       DefaultCardType,
	}
	require.True(t, good.Valid(october2026))

	badNumber := good
	badNumber.CardNumber = "4111"
	badExpiry := good
	badExpiry.ExpiryDate = "09/26"
	badCVV := good
	badCVV.CVV = "1"
	badName := good
	badName.CardholderName = " "

	for _, c := range []CardDetails{badNumber, badExpiry, badCVV, badName} {
		assert.False(t, c.Valid(october2026), "%+v", c)
	}
}

func TestParseField(t *testing.T) {
	f, err := ParseField("cvv")
	require.NoError(t, err)
	assert.Equal(t, FieldCVV, f)

	_, err = ParseField("pin")
	assert.Error(t, err)
}
