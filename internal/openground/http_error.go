package openground

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/util"
)

// APIError is a sanitized summary of a non-2xx OpenGround response. Any
// non-success status is fatal for the current test and carries a redacted,
// truncated body snippet for diagnosis.
type APIError struct {
	Op         string
	StatusCode int
	Status     string

	// Snippet is a redacted, truncated hint from the response body.
	Snippet string
}

func (e *APIError) Error() string {
	if e == nil {
		return "openground api error"
	}
	parts := []string{
		fmt.Sprintf("openground api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newAPIError(op string, resp *http.Response, body []byte) error {
	e := &APIError{Op: op}
	if resp != nil {
		e.StatusCode = resp.StatusCode
		e.Status = resp.Status
	}
	e.Snippet = redactAndTruncate(body)
	return e
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Keep this small: response bodies can echo request payloads.
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := util.RedactSecrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
