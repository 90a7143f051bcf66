package portalapi

import "regexp"

var (
	cardRe  = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
	cvvJSON = regexp.MustCompile(`(?i)("(?:cvv|cvc|securityCode)"\s*:\s*)"[^"]*"`)
	cvvText = regexp.MustCompile(`(?i)\b(cvv|cvc)(\s*[=:]?\s*)\d{3,4}\b`)
)

// scrub masks card numbers, CVVs, emails and phone numbers in text bound for
// logs. Card numbers go first so their digits are not mistaken for phones.
func scrub(text string) string {
	text = cvvJSON.ReplaceAllString(text, `$1"[CVV]"`)
	text = cvvText.ReplaceAllString(text, "${1}${2}[CVV]")
	text = cardRe.ReplaceAllString(text, "[CARD]")
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	return text
}
