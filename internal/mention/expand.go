// Package mention rewrites message text using the daemon's mention spans.
package mention

import "strings"

// LookupFunc resolves a recipient id to a display name. An empty result means
// the recipient is unknown. Lookups are sequential; their latency counts
// against per-message processing time.
type LookupFunc func(recipient string) string

// Span is one mention range. Offsets are in Unicode code points.
type Span struct {
	Recipient string
	Start     int
	Length    int
}

// Expand rewrites body by replacing each span with "@{recipient}", followed by
// " ({name})" when lookup resolves a name. Spans are applied in the order
// given with a forward-moving cursor; a span starting before the cursor or
// past the end of the text is skipped rather than corrupting output. A span
// whose end passes the end of the text suppresses the trailing remainder,
// guarding a known inconsistency in the daemon's offset data.
func Expand(body string, spans []Span, lookup LookupFunc) string {
	if len(spans) == 0 {
		return body
	}

	runes := []rune(body)
	var b strings.Builder
	cursor := 0
	truncated := false

	for _, s := range spans {
		if s.Start < cursor || s.Start > len(runes) {
			continue
		}
		b.WriteString(string(runes[cursor:s.Start]))
		b.WriteString("@")
		b.WriteString(s.Recipient)
		if name := lookup(s.Recipient); name != "" {
			b.WriteString(" (")
			b.WriteString(name)
			b.WriteString(")")
		}
		cursor = s.Start + s.Length
		if cursor > len(runes) {
			truncated = true
			break
		}
	}

	if !truncated && cursor <= len(runes) {
		b.WriteString(string(runes[cursor:]))
	}
	return b.String()
}
