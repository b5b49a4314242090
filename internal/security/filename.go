// Package security guards file names derived from user input.
package security

import "strings"

const maxFilenameLen = 128

// SanitizeFilename turns an arbitrary identifier, such as a query name, into
// a single path element. Runs of characters outside [A-Za-z0-9._-] become
// one underscore, leading and trailing dots and underscores are trimmed, and
// the result is capped at 128 bytes. An identifier with nothing usable left
// becomes "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		if safeRune(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}

	out := strings.Trim(b.String(), "._")
	if len(out) > maxFilenameLen {
		out = out[:maxFilenameLen]
	}
	if out == "" {
		return "unknown"
	}
	return out
}

func safeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	}
	return false
}
