package util

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens). Keep it broad: tokens show up
	// in logs via downstream libraries and HTTP error messages.
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	secretKVRe = regexp.MustCompile(`(?i)\b(client[_-]?secret|access[_-]?token)\b\s*["']?\s*[:=]\s*["']?[^\s"',}]+`)
)

// RedactSecrets removes obvious secret-bearing substrings from error/log strings.
//
// This is intentionally conservative: it should be safe to call on any message,
// including upstream error strings and remote response bodies.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = secretKVRe.ReplaceAllString(out, "<redacted_kv>")
	return strings.TrimSpace(out)
}
