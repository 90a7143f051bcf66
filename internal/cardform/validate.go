package cardform

import (
	"strconv"
	"strings"
	"time"
)

const (
	minCardDigits = 13
	maxCardDigits = 19
	minCVVDigits  = 3
)

// ValidateCardNumber reports whether the number is 13-19 digits once spaces
// are removed.
func ValidateCardNumber(cardNumber string) bool {
	cleaned := stripSpace(cardNumber)
	if len(cleaned) < minCardDigits || len(cleaned) > maxCardDigits {
		return false
	}
	for i := 0; i < len(cleaned); i++ {
		if cleaned[i] < '0' || cleaned[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateExpiryDate reports whether an MM/YY expiry is in the current month
// or later. Only two-digit years are compared and the month is not bounded,
// so "13/30" passes.
func ValidateExpiryDate(expiryDate string, now time.Time) bool {
	parts := strings.Split(expiryDate, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return false
	}
	month, ok := leadingInt(parts[0])
	if !ok {
		return false
	}
	year, ok := leadingInt(parts[1])
	if !ok {
		return false
	}

	currentYear := now.Year() % 100
	currentMonth := int(now.Month())
	return year > currentYear || (year == currentYear && month >= currentMonth)
}

// leadingInt parses the leading integer of s, ignoring anything after the
// digits. It fails when s does not start with a number.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ValidCVV reports whether the CVV has 3 or 4 characters.
func ValidCVV(cvv string) bool {
	return len(cvv) >= minCVVDigits && len(cvv) <= maxCVVDigits
}
