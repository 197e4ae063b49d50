package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

// minOutputRunes is the shortest output, after trimming, that is emitted
// instead of the fallback message.
const minOutputRunes = 10

// IsForbidden reports whether text touches a topic the channel gates.
func IsForbidden(text string, policy *ruleset.ChannelPolicy) bool {
	_, ok := MatchProbe(text, policy)
	return ok
}

// MatchProbe returns the first probe of policy that matches text. Exact
// phrases use case-insensitive containment; structural patterns use their
// compiled expression.
func MatchProbe(text string, policy *ruleset.ChannelPolicy) (ruleset.Probe, bool) {
	if policy == nil || len(policy.Probes) == 0 {
		return ruleset.Probe{}, false
	}
	lower := strings.ToLower(text)
	for _, p := range policy.Probes {
		switch p.Kind {
		case ruleset.ProbeExactPhrase:
			if strings.Contains(lower, p.Value) {
				return p, true
			}
		case ruleset.ProbeStructuralPattern:
			if p.Pattern.MatchString(text) {
				return p, true
			}
		}
	}
	return ruleset.Probe{}, false
}

// Degenerate reports whether text, the neutralized form of original, is
// unfit to show: invalid UTF-8, nearly empty, made only of markup, or
// carrying unmatched emphasis markers that original did not have.
func Degenerate(text, original string) bool {
	if !utf8.ValidString(text) {
		return true
	}
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < minOutputRunes {
		return true
	}
	if strings.IndexFunc(trimmed, func(r rune) bool { return !isMarkup(r) }) < 0 {
		return true
	}
	return strayEmphasis(trimmed) && !strayEmphasis(strings.TrimSpace(original))
}

func isMarkup(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune("*_#>-`~", r)
}

// strayEmphasis counts emphasis markers outside list bullets. An odd count
// of "**", "__" or single "*" means a marker lost its partner.
func strayEmphasis(text string) bool {
	var body strings.Builder
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(l, "* ") || strings.HasPrefix(l, "- ") {
			l = l[2:]
		}
		body.WriteString(l)
		body.WriteByte('\n')
	}
	s := body.String()
	if strings.Count(s, "**")%2 != 0 || strings.Count(s, "__")%2 != 0 {
		return true
	}
	singles := strings.ReplaceAll(s, "**", "")
	return strings.Count(singles, "*")%2 != 0
}
