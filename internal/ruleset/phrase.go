package ruleset

import (
	"fmt"
	"regexp"
	"strings"
)

// Phrase is a case-insensitive, word-boundary anchored matcher with
// exclusion phrases. Exclusions stand in for negative lookaround, which the
// RE2 engine does not support: a match is dropped when the text right after
// it starts with an UnlessFollowedBy phrase or the text right before it ends
// with an UnlessPrecededBy phrase.
type Phrase struct {
	source           string
	re               *regexp.Regexp
	unlessFollowedBy []string
	unlessPrecededBy []string
}

// CompilePhrase compiles pattern, which may use RE2 groups and alternation,
// into an anchored case-insensitive Phrase.
func CompilePhrase(pattern string, unlessFollowedBy, unlessPrecededBy []string) (*Phrase, error) {
	re, err := regexp.Compile(`(?i)\b(?:` + pattern + `)\b`)
	if err != nil {
		return nil, fmt.Errorf("CompilePhrase %q: %w", pattern, err)
	}
	return &Phrase{
		source:           pattern,
		re:               re,
		unlessFollowedBy: lowerAll(unlessFollowedBy),
		unlessPrecededBy: lowerAll(unlessPrecededBy),
	}, nil
}

// Source returns the uncompiled pattern.
func (p *Phrase) Source() string { return p.source }

// HasExclusions reports whether matches depend on surrounding context.
func (p *Phrase) HasExclusions() bool {
	return len(p.unlessFollowedBy) > 0 || len(p.unlessPrecededBy) > 0
}

// FindAll returns submatch index slices for every accepted, non-overlapping
// match in text. before and after are the text that surrounds text in a
// larger document; only exclusions look at them.
func (p *Phrase) FindAll(text, before, after string) [][]int {
	locs := p.re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 || !p.HasExclusions() {
		return locs
	}
	kept := locs[:0]
	for _, m := range locs {
		if p.excluded(before+text[:m[0]], text[m[1]:]+after) {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// MatchString reports whether text contains an accepted match.
func (p *Phrase) MatchString(text string) bool {
	return len(p.FindAll(text, "", "")) > 0
}

// Expand renders template for match m of text, resolving ${n} references.
func (p *Phrase) Expand(template, text string, m []int) string {
	return string(p.re.ExpandString(nil, template, text, m))
}

func (p *Phrase) excluded(prefix, suffix string) bool {
	rest := strings.ToLower(strings.TrimLeft(suffix, " \t"))
	for _, ex := range p.unlessFollowedBy {
		if strings.HasPrefix(rest, ex) && boundaryAfter(rest, len(ex), ex) {
			return true
		}
	}
	head := strings.ToLower(strings.TrimRight(prefix, " \t"))
	for _, ex := range p.unlessPrecededBy {
		if strings.HasSuffix(head, ex) && boundaryBefore(head, len(head)-len(ex), ex) {
			return true
		}
	}
	return false
}

// boundaryAfter requires a word boundary after an exclusion that ends in a
// word character, so "be noted" does not exclude "be notedly".
func boundaryAfter(s string, end int, ex string) bool {
	if !isWordByte(ex[len(ex)-1]) || end >= len(s) {
		return true
	}
	return !isWordByte(s[end])
}

func boundaryBefore(s string, start int, ex string) bool {
	if !isWordByte(ex[0]) || start <= 0 {
		return true
	}
	return !isWordByte(s[start-1])
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
