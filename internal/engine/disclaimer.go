package engine

import (
	"strings"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

// Inject wraps text in the disclaimer header and footer when it mentions a
// high-risk topic (or force is set) and does not already carry the dedupe
// marker. Calling Inject on its own output is a no-op.
func Inject(text string, force bool, d *ruleset.Disclaimer) (string, bool) {
	if strings.Contains(text, d.Marker) {
		return text, false
	}
	if !force && !d.Triggered(text) {
		return text, false
	}

	var b strings.Builder
	b.Grow(len(d.Header) + len(text) + len(d.Footer) + 4)
	b.WriteString(d.Header)
	b.WriteString("\n\n")
	b.WriteString(text)
	b.WriteString("\n\n")
	b.WriteString(d.Footer)
	return b.String(), true
}
