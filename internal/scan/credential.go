package scan

import "regexp"

// credentialPlaceholder replaces every credential match, regardless of which
// pattern fired. A single fixed placeholder leaks nothing about the secret's
// shape or length.
const credentialPlaceholder = "[CREDENTIAL REDACTED]"

// CredentialResult is the outcome of one credential scan.
type CredentialResult struct {
	HasCredentials bool
	PatternNames   []string
	RedactedText   string
}

type credentialPattern struct {
	Name string
	Re   *regexp.Regexp
}

// credentialPatterns is evaluated in declared order. Ordering is an
// invariant: specific patterns run before the generic catch-all so a matched
// credential is classified as precisely as possible, and each stage redacts
// before the next runs so the catch-all never re-matches a specific hit.
// TestCredentialPatternOrdering pins this.
var credentialPatterns = []credentialPattern{
	{"aws-key", regexp.MustCompile(`\b(?:AKIA|ASIA|ABIA|ACCA)[0-9A-Z]{16}\b`)},
	{"private-key", regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----`)},
	{"github-token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"slack-token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9][A-Za-z0-9-]{8,}\b`)},
	{"google-api-key", regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`)},
	{"anthropic-key", regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_\-]{20,}\b`)},
	{"openai-key", regexp.MustCompile(`\bsk-[A-Za-z0-9]{32,}\b`)},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,}\b`)},
	{"connection-string", regexp.MustCompile(`\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^:/\s]+:[^@\s]+@[^\s]+`)},
	{"bearer-token", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.=]{16,}`)},
	{"generic-secret", regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret|token|passwd|password|credential)s?\s*[=:]\s*["']?[A-Za-z0-9_\-./+]{8,}["']?`)},
}

// ScanForCredentials scans text for credential-shaped values and redacts
// every match with a single fixed placeholder.
func ScanForCredentials(text string) CredentialResult {
	result := CredentialResult{RedactedText: text}

	for _, p := range credentialPatterns {
		if !p.Re.MatchString(result.RedactedText) {
			continue
		}
		result.HasCredentials = true
		result.PatternNames = append(result.PatternNames, p.Name)
		result.RedactedText = p.Re.ReplaceAllString(result.RedactedText, credentialPlaceholder)
	}

	return result
}

// RedactCredentials is the convenience form used on command output and file
// reads where only the cleaned text matters.
func RedactCredentials(text string) string {
	return ScanForCredentials(text).RedactedText
}
