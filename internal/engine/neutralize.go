package engine

import (
	"strings"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

// span is a piece of text in a neutralization pass. Protected spans were
// produced by a substitution and are not rewritten again in the same pass.
type span struct {
	text      string
	protected bool
}

// Neutralize rewrites directive and personalized phrasing in text using the
// rules of tbl, in order. Each rule sees the output of the previous one, so
// generic rules catch residue that specific rules left behind. It reports
// whether the output differs from the input.
func Neutralize(text string, tbl *ruleset.Table) (string, bool) {
	spans := []span{{text: text}}
	for _, r := range tbl.Rules {
		spans = applyRule(spans, r)
	}
	out := joinSpans(spans)
	return out, out != text
}

func applyRule(spans []span, r *ruleset.Rule) []span {
	var out []span
	changed := false
	for i, s := range spans {
		if s.protected || s.text == "" {
			out = append(out, s)
			continue
		}

		var before, after string
		if r.HasExclusions() {
			before = joinSpans(spans[:i])
			after = joinSpans(spans[i+1:])
		}
		locs := r.FindAll(s.text, before, after)
		if len(locs) == 0 {
			out = append(out, s)
			continue
		}

		changed = true
		last := 0
		for _, m := range locs {
			if m[0] > last {
				out = append(out, span{text: s.text[last:m[0]]})
			}
			out = append(out, span{text: r.Apply(s.text, m), protected: true})
			last = m[1]
		}
		if last < len(s.text) {
			out = append(out, span{text: s.text[last:]})
		}
	}
	if !changed {
		return spans
	}
	return out
}

func joinSpans(spans []span) string {
	switch len(spans) {
	case 0:
		return ""
	case 1:
		return spans[0].text
	}
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.text)
	}
	return b.String()
}
