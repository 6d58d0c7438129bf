package audit

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	// Metadata keys whose values are replaced wholesale.
	sensitiveKeyRe = regexp.MustCompile(`(?i)(password|token|secret|ssn|card|cvv|pan|number)`)

	// Explicit password assignments inside free text: "password=...", "pwd: ...".
	passwordAssignRe = regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*[:=]\s*\S+`)

	// JWT-shaped substrings: three dot-separated base64url segments.
	// The per-segment minimum keeps IPs and version strings out of scope.
	jwtShapedRe = regexp.MustCompile(`\b[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\b`)

	// Long opaque token-like runs in a base64url-like alphabet.
	longTokenRe = regexp.MustCompile(`[A-Za-z0-9_-]{32,}`)

	// Lower-case snake_case words are identifiers (detail codes, column
	// names), not secrets. Generated tokens always carry mixed case or
	// digits, so these are safe to let through regardless of length.
	snakeWordRe = regexp.MustCompile(`^[a-z]+(_[a-z]+)+$`)
)

// Mask returns a copy of e with sensitive material removed.
// The input event is not mutated.
func Mask(e Event) Event {
	e.Detail = MaskText(e.Detail)

	if len(e.Metadata) > 0 {
		clean := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			if sensitiveKeyRe.MatchString(k) {
				clean[k] = redacted
				continue
			}
			clean[k] = MaskText(v)
		}
		e.Metadata = clean
	}

	return e
}

// MaskText redacts token-shaped and password-carrying substrings in free text.
// Assignments go first so short passwords are caught before the run-length
// patterns get a chance to split them.
func MaskText(s string) string {
	if s == "" {
		return s
	}
	s = passwordAssignRe.ReplaceAllString(s, "$1="+redacted)
	s = jwtShapedRe.ReplaceAllString(s, redacted)
	s = longTokenRe.ReplaceAllStringFunc(s, func(m string) string {
		if snakeWordRe.MatchString(m) {
			return m
		}
		return redacted
	})
	return s
}

// SensitiveKey reports whether a metadata key is treated as sensitive.
func SensitiveKey(k string) bool {
	return sensitiveKeyRe.MatchString(strings.TrimSpace(k))
}
