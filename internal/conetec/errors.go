package conetec

import (
	"fmt"
	"sort"
	"strings"
)

// FormatError reports a source file that does not match the expected
// two-block ConeTec layout. Always fatal for that file; no partial parse is
// returned.
type FormatError struct {
	File   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("conetec format error: file=%s %s", e.File, e.Reason)
}

func formatErrorf(file, format string, args ...any) error {
	return &FormatError{File: file, Reason: fmt.Sprintf(format, args...)}
}

// SchemaError reports metadata field names outside the known allow-list. It
// signals that ConeTec's export format changed and the mapping tables need a
// deliberate update; it is never silently dropped.
type SchemaError struct {
	File    string
	Unknown []string
}

func (e *SchemaError) Error() string {
	names := append([]string(nil), e.Unknown...)
	sort.Strings(names)
	return fmt.Sprintf("conetec schema error: file=%s unrecognized metadata fields: %s",
		e.File, strings.Join(names, ", "))
}
