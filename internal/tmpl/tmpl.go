// Package tmpl renders the placeholder templates used for mail subjects,
// headings, signatures, headers, and auto-replies.
package tmpl

import "strings"

// Replacement maps one literal placeholder token (e.g. "{senderName}") to its
// resolved value.
type Replacement struct {
	Token string
	Value string
}

// Render substitutes every replacement into template with plain, global
// substring replacement, applied one entry at a time in slice order. A later
// entry may match text introduced by an earlier one; callers rely on this
// pass-order behavior, so it is a property of the renderer, not an accident.
// No date formatting happens here: {timestamp} values arrive pre-formatted.
func Render(template string, reps []Replacement) string {
	out := template
	for _, r := range reps {
		out = strings.ReplaceAll(out, r.Token, r.Value)
	}
	return out
}
