package engine

import "github.com/triage-ai/uplguard/internal/ruleset"

// OutputType is the kind of AI output the upstream generator produced.
type OutputType string

const (
	OutputResearch         OutputType = "research"
	OutputDocumentAnalysis OutputType = "document_analysis"
	OutputEducation        OutputType = "education"
	OutputCaseSuggestion   OutputType = "case_suggestion"
	OutputDefenseDraft     OutputType = "defense_draft"
)

// ParseOutputType maps an API value to an OutputType. Unknown and empty
// values are treated as research.
func ParseOutputType(s string) OutputType {
	switch o := OutputType(s); o {
	case OutputResearch, OutputDocumentAnalysis, OutputEducation, OutputCaseSuggestion, OutputDefenseDraft:
		return o
	default:
		return OutputResearch
	}
}

// Outcome names which of the user-visible paths a result took.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota + 1
	OutcomeNeutralized
	OutcomeRedirected
	OutcomeFallback
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeNeutralized:
		return "neutralized"
	case OutcomeRedirected:
		return "redirected"
	case OutcomeFallback:
		return "fallback"
	default:
		return "unspecified"
	}
}

// ViolationMatch is one scanner hit.
type ViolationMatch struct {
	PatternID string                `json:"pattern_id"`
	Severity  ruleset.Severity      `json:"severity"`
	Type      ruleset.ViolationType `json:"type"`
	Match     string                `json:"match"`
	Offset    int                   `json:"offset"`
}

// ComplianceResult is the annotated output of one pipeline call.
type ComplianceResult struct {
	OriginalText       string
	TransformedText    string
	Modified           bool
	Violations         []ViolationMatch
	RiskLevel          ruleset.Severity
	Reason             string
	DisclaimerInjected bool
	Outcome            Outcome
	Gated              bool
	MinimizeAllowed    bool
	RulesetVersion     string
}
