package scan

import (
	"regexp"
	"sort"
	"strings"
)

// PIIResult is the outcome of one PII scan.
type PIIResult struct {
	HasPII       bool
	PatternNames []string
	RedactedText string
}

// piiMatch is one located finding, kept as byte offsets so redaction can run
// end-to-start without invalidating earlier positions.
type piiMatch struct {
	category string
	start    int
	end      int
}

type piiCategory struct {
	Name        string
	Placeholder string
	Re          *regexp.Regexp
	Validate    func(match string) bool
	// NoDigitNeighbors rejects matches that sit inside a longer digit run.
	// RE2 has no lookbehind, so a 10-digit phone shape would otherwise match
	// the tail of any 16-digit card number.
	NoDigitNeighbors bool
}

// piiCategories are independent; every category runs against the full text.
var piiCategories = []piiCategory{
	{
		Name:        "ssn",
		Placeholder: "[SSN REDACTED]",
		Re:          regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		Name:        "credit-card",
		Placeholder: "[CREDIT CARD REDACTED]",
		Re:          regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
		Validate:    validateCreditCard,
	},
	{
		Name:        "email",
		Placeholder: "[EMAIL REDACTED]",
		Re:          regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	},
	{
		Name:        "phone",
		Placeholder: "[PHONE REDACTED]",
		Re:               regexp.MustCompile(`(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`),
		Validate:         validatePhone,
		NoDigitNeighbors: true,
	},
	{
		Name:        "street-address",
		Placeholder: "[ADDRESS REDACTED]",
		Re:          regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][A-Za-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Circle|Cir|Way|Place|Pl|Terrace|Ter)\b\.?`),
	},
}

// validateCreditCard requires a 13-19 digit sequence that passes the Luhn
// checksum. This discards hex strings, UUID fragments, and other numeric
// runs that merely look card-shaped.
func validateCreditCard(match string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return luhnValid(digits)
}

// luhnValid implements the Luhn checksum over a digit string.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// validatePhone rejects IPv4-shaped and version-number-shaped sequences.
// "10.0.0.1" and "v1.2.3.4" both fit the loose phone regex.
func validatePhone(match string) bool {
	if strings.Count(match, ".") >= 2 {
		return false
	}
	return true
}

// ScanForPII scans text for personally identifying information. Matches are
// sorted by position and redacted end-to-start so earlier offsets stay valid.
func ScanForPII(text string) PIIResult {
	var matches []piiMatch
	seen := map[string]bool{}
	var names []string

	for _, cat := range piiCategories {
		for _, loc := range cat.Re.FindAllStringIndex(text, -1) {
			m := text[loc[0]:loc[1]]
			if cat.Validate != nil && !cat.Validate(m) {
				continue
			}
			if cat.NoDigitNeighbors && hasDigitNeighbor(text, loc[0], loc[1]) {
				continue
			}
			matches = append(matches, piiMatch{category: cat.Name, start: loc[0], end: loc[1]})
			if !seen[cat.Name] {
				seen[cat.Name] = true
				names = append(names, cat.Name)
			}
		}
	}

	if len(matches) == 0 {
		return PIIResult{RedactedText: text}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	// Overlapping matches (a card number inside a longer digit run) are
	// collapsed by keeping the earlier span and skipping anything it covers.
	redacted := text
	prevStart := len(text) + 1
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if m.end > prevStart {
			continue
		}
		redacted = redacted[:m.start] + placeholderFor(m.category) + redacted[m.end:]
		prevStart = m.start
	}

	return PIIResult{HasPII: true, PatternNames: names, RedactedText: redacted}
}

func hasDigitNeighbor(text string, start, end int) bool {
	if start > 0 && text[start-1] >= '0' && text[start-1] <= '9' {
		return true
	}
	if end < len(text) && text[end] >= '0' && text[end] <= '9' {
		return true
	}
	return false
}

func placeholderFor(category string) string {
	for _, cat := range piiCategories {
		if cat.Name == category {
			return cat.Placeholder
		}
	}
	return "[PII REDACTED]"
}
