package ruleset

import "strings"

// Severity ranks violation patterns and the derived risk level of a text.
// Risk levels use the same scale, with SeverityLow meaning "no match".
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the upper-case severity name used in tables and reports.
func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "LOW"
	}
}

// ParseSeverity maps a table or API value to a Severity. Unknown values map
// to SeverityLow and ok=false.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return SeverityLow, true
	case "MEDIUM":
		return SeverityMedium, true
	case "HIGH":
		return SeverityHigh, true
	case "CRITICAL":
		return SeverityCritical, true
	default:
		return SeverityLow, false
	}
}

// MarshalText lets severities serialize as their names in JSON reports.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Severity) UnmarshalText(b []byte) error {
	v, _ := ParseSeverity(string(b))
	*s = v
	return nil
}

// ViolationType classifies what a violation pattern detects.
type ViolationType string

const (
	TypeLegalAdviceLanguage ViolationType = "LEGAL_ADVICE_LANGUAGE"
	TypeCriticalUPL         ViolationType = "CRITICAL_UPL_VIOLATION"
)

// Category groups rewrite rules. Each category owns exactly one tier.
type Category string

const (
	CategoryCriticalPhrase  Category = "critical-phrase"
	CategoryDirectiveModal  Category = "directive-modal"
	CategoryRecommendation  Category = "recommendation"
	CategoryBestPractice    Category = "best-practice"
	CategoryPersonalization Category = "personalization"
	CategoryConclusion      Category = "conclusion"
	CategoryGenericResidual Category = "generic-residual"
)

// categoryTiers fixes the application order of rule categories.
var categoryTiers = map[Category]int{
	CategoryCriticalPhrase:  1,
	CategoryDirectiveModal:  2,
	CategoryRecommendation:  3,
	CategoryBestPractice:    4,
	CategoryPersonalization: 5,
	CategoryConclusion:      6,
	CategoryGenericResidual: 7,
}

// GateMode selects how a channel treats candidate text.
type GateMode string

const (
	ModeStrictGate  GateMode = "STRICT_GATE"
	ModeRewriteOnly GateMode = "REWRITE_ONLY"
)

// DefaultChannelID names the channel policy used when a caller does not
// specify one or names an unknown channel.
const DefaultChannelID = "default"

// Document is the on-disk YAML form of a rule table.
type Document struct {
	Version         string          `yaml:"version" validate:"required"`
	Name            string          `yaml:"name" validate:"required"`
	FallbackMessage string          `yaml:"fallback_message" validate:"required,min=10"`
	Policy          PolicySpec      `yaml:"policy"`
	Rules           []RuleSpec      `yaml:"rules" validate:"required,min=1,dive"`
	Violations      []ViolationSpec `yaml:"violations" validate:"required,min=1,dive"`
	Disclaimer      DisclaimerSpec  `yaml:"disclaimer"`
	Channels        []ChannelSpec   `yaml:"channels" validate:"dive"`
}

// PolicySpec carries severity policy that downstream surfaces act on.
type PolicySpec struct {
	// MinimizeBlockedAt is the lowest risk level at which a disclaimer
	// banner may not be minimized. Empty means HIGH.
	MinimizeBlockedAt string `yaml:"minimize_blocked_at" validate:"omitempty,oneof=MEDIUM HIGH CRITICAL"`
}

// RuleSpec is one rewrite rule as written in the table.
type RuleSpec struct {
	ID               string   `yaml:"id" validate:"required"`
	Tier             int      `yaml:"tier" validate:"min=1,max=7"`
	Category         string   `yaml:"category" validate:"oneof=critical-phrase directive-modal recommendation best-practice personalization conclusion generic-residual"`
	Pattern          string   `yaml:"pattern" validate:"required"`
	Replacement      string   `yaml:"replacement" validate:"required"`
	UnlessFollowedBy []string `yaml:"unless_followed_by" validate:"dive,required"`
	UnlessPrecededBy []string `yaml:"unless_preceded_by" validate:"dive,required"`
	Examples         []string `yaml:"examples" validate:"required,min=1,dive,required"`
}

// ViolationSpec is one scanner pattern as written in the table.
type ViolationSpec struct {
	ID               string   `yaml:"id" validate:"required"`
	Pattern          string   `yaml:"pattern" validate:"required"`
	Severity         string   `yaml:"severity" validate:"oneof=MEDIUM HIGH CRITICAL"`
	Type             string   `yaml:"type" validate:"oneof=LEGAL_ADVICE_LANGUAGE CRITICAL_UPL_VIOLATION"`
	UnlessFollowedBy []string `yaml:"unless_followed_by" validate:"dive,required"`
	UnlessPrecededBy []string `yaml:"unless_preceded_by" validate:"dive,required"`
}

// DisclaimerSpec is the disclaimer template as written in the table.
type DisclaimerSpec struct {
	TriggerVocabulary []string `yaml:"trigger_vocabulary" validate:"required,min=1,dive,required"`
	Header            string   `yaml:"header" validate:"required"`
	Footer            string   `yaml:"footer" validate:"required"`
	DedupeMarker      string   `yaml:"dedupe_marker" validate:"required"`
	AlwaysFor         []string `yaml:"always_for" validate:"dive,required"`
}

// ChannelSpec is a channel policy as written in the table or stored in
// Postgres.
type ChannelSpec struct {
	ChannelID         string   `yaml:"channel_id" json:"channel_id" validate:"required"`
	Mode              string   `yaml:"mode" json:"mode" validate:"oneof=STRICT_GATE REWRITE_ONLY"`
	ForbiddenPhrases  []string `yaml:"forbidden_phrases" json:"forbidden_phrases" validate:"dive,required"`
	ForbiddenPatterns []string `yaml:"forbidden_patterns" json:"forbidden_patterns" validate:"dive,required"`
	RedirectMessage   string   `yaml:"redirect_message" json:"redirect_message" validate:"required_if=Mode STRICT_GATE"`
	// Probes are sample texts that must be gated. The regression harness
	// checks every one of them.
	Probes []string `yaml:"probes" json:"probes,omitempty" validate:"dive,required"`
}
