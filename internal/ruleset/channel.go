package ruleset

import (
	"fmt"
	"regexp"
	"strings"
)

// ProbeKind tags how a forbidden-topic probe is evaluated.
type ProbeKind int

const (
	ProbeExactPhrase ProbeKind = iota + 1
	ProbeStructuralPattern
)

// String returns the probe kind name.
func (k ProbeKind) String() string {
	switch k {
	case ProbeExactPhrase:
		return "EXACT_PHRASE"
	case ProbeStructuralPattern:
		return "STRUCTURAL_PATTERN"
	default:
		return "UNSPECIFIED"
	}
}

// Probe is one forbidden-topic matcher of a channel policy.
type Probe struct {
	Kind ProbeKind
	// Value is the lower-cased phrase or the uncompiled pattern.
	Value   string
	Pattern *regexp.Regexp // nil for exact phrases
}

// ChannelPolicy is the compiled gate configuration of one channel.
type ChannelPolicy struct {
	ID              string
	Mode            GateMode
	Probes          []Probe
	RedirectMessage string
	// Samples are texts the regression harness expects to be gated.
	Samples []string
}

// Strict reports whether the channel gates forbidden topics.
func (p *ChannelPolicy) Strict() bool {
	return p != nil && p.Mode == ModeStrictGate
}

// CompileChannel validates and compiles a channel spec. Structural patterns
// are case-insensitive and let "." span line breaks.
func CompileChannel(s ChannelSpec) (*ChannelPolicy, error) {
	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("channel %q: %w", s.ChannelID, err)
	}
	p := &ChannelPolicy{
		ID:              s.ChannelID,
		Mode:            GateMode(s.Mode),
		RedirectMessage: s.RedirectMessage,
		Samples:         s.Probes,
	}
	for _, phrase := range s.ForbiddenPhrases {
		p.Probes = append(p.Probes, Probe{
			Kind:  ProbeExactPhrase,
			Value: strings.ToLower(phrase),
		})
	}
	for _, pat := range s.ForbiddenPatterns {
		re, err := regexp.Compile(`(?is)` + pat)
		if err != nil {
			return nil, fmt.Errorf("channel %q: pattern %q: %w", s.ChannelID, pat, err)
		}
		p.Probes = append(p.Probes, Probe{
			Kind:    ProbeStructuralPattern,
			Value:   pat,
			Pattern: re,
		})
	}
	if p.Mode == ModeStrictGate && len(p.Probes) == 0 {
		return nil, fmt.Errorf("channel %q: STRICT_GATE needs at least one forbidden phrase or pattern", s.ChannelID)
	}
	return p, nil
}
