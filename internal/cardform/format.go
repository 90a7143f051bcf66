// Package cardform formats and validates the credit card fields entered on the
// payment page. Every function here is pure.
package cardform

import (
	"strings"
	"unicode"
)

const (
	cardGroupSize   = 4
	minCardRun      = 4
	maxCardRun      = 16
	maxCVVDigits    = 4
	expiryPartWidth = 2
)

// digitsOnly drops every rune that is not an ASCII digit.
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatCardNumber keeps the first run of up to 16 digits and groups it in
// blocks of four. Input with fewer than four digits is returned as bare digits.
func FormatCardNumber(value string) string {
	digits := digitsOnly(value)
	if len(digits) < minCardRun {
		return digits
	}
	if len(digits) > maxCardRun {
		digits = digits[:maxCardRun]
	}

	groups := make([]string, 0, (len(digits)+cardGroupSize-1)/cardGroupSize)
	for i := 0; i < len(digits); i += cardGroupSize {
		end := i + cardGroupSize
		if end > len(digits) {
			end = len(digits)
		}
		groups = append(groups, digits[i:end])
	}
	return strings.Join(groups, " ")
}

// FormatExpiryDate normalizes keystrokes into MM/YY. The slash appears as soon
// as two digits are present, so "12" becomes "12/".
func FormatExpiryDate(value string) string {
	digits := digitsOnly(value)
	if len(digits) < expiryPartWidth {
		return digits
	}
	year := digits[expiryPartWidth:]
	if len(year) > expiryPartWidth {
		year = year[:expiryPartWidth]
	}
	return digits[:expiryPartWidth] + "/" + year
}

// SanitizeCVV keeps at most four digits.
func SanitizeCVV(value string) string {
	digits := digitsOnly(value)
	if len(digits) > maxCVVDigits {
		return digits[:maxCVVDigits]
	}
	return digits
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
