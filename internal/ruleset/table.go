package ruleset

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed data/compliance_v1.yaml
var defaultDocument []byte

// ErrOrdering is returned when a generic rule would run before a more
// specific rule and fragment the idiom the specific rule targets.
var ErrOrdering = errors.New("rule ordering violation")

// Table is an immutable, compiled rule table snapshot. Nothing in a Table
// is modified after Parse returns; a new version is a new Table.
type Table struct {
	Version           string
	Name              string
	Digest            string
	FallbackMessage   string
	MinimizeBlockedAt Severity

	// Rules are in application order: ascending tier, then declaration order.
	Rules      []*Rule
	Violations []*ViolationPattern
	Disclaimer *Disclaimer

	channels   map[string]*ChannelPolicy
	channelIDs []string
}

// Rule is a compiled rewrite rule.
type Rule struct {
	ID          string
	Tier        int
	Category    Category
	Replacement string
	Examples    []string
	*Phrase
}

// Apply renders the replacement for match m of text, carrying over the
// capitalization of the matched text's first letter.
func (r *Rule) Apply(text string, m []int) string {
	return matchCase(text[m[0]:m[1]], r.Expand(r.Replacement, text, m))
}

// ViolationPattern is a compiled scanner pattern.
type ViolationPattern struct {
	ID       string
	Severity Severity
	Type     ViolationType
	*Phrase
}

// Disclaimer is the compiled disclaimer template.
type Disclaimer struct {
	Header    string
	Footer    string
	Marker    string
	triggers  *regexp.Regexp
	alwaysFor map[string]bool
}

// Triggered reports whether text mentions any high-risk topic word.
func (d *Disclaimer) Triggered(text string) bool {
	return d.triggers.MatchString(text)
}

// ForcedFor reports whether outputType always receives the disclaimer.
func (d *Disclaimer) ForcedFor(outputType string) bool {
	return d.alwaysFor[outputType]
}

// Channel returns the policy for id, or the default channel policy when id
// is empty or unknown.
func (t *Table) Channel(id string) *ChannelPolicy {
	if p, ok := t.channels[id]; ok {
		return p
	}
	return t.channels[DefaultChannelID]
}

// LookupChannel returns the policy for id and whether the table defines it.
func (t *Table) LookupChannel(id string) (*ChannelPolicy, bool) {
	p, ok := t.channels[id]
	return p, ok
}

// anyText matches every non-empty text.
var anyText = regexp.MustCompile(`(?s).`)

// Lockdown returns a STRICT_GATE policy for id that gates every non-empty
// text with the fallback message. It stands in for a channel whose policy
// cannot be read.
func (t *Table) Lockdown(id string) *ChannelPolicy {
	return &ChannelPolicy{
		ID:   id,
		Mode: ModeStrictGate,
		Probes: []Probe{{
			Kind:    ProbeStructuralPattern,
			Value:   "lockdown",
			Pattern: anyText,
		}},
		RedirectMessage: t.FallbackMessage,
	}
}

// ChannelIDs lists the channels defined by the table in declaration order.
func (t *Table) ChannelIDs() []string {
	return append([]string(nil), t.channelIDs...)
}

// MinimizeAllowed reports whether a disclaimer shown for text at level may
// be minimized by the UI.
func (t *Table) MinimizeAllowed(level Severity) bool {
	return level < t.MinimizeBlockedAt
}

// Default parses the rule table embedded in the binary.
func Default() (*Table, error) {
	return Parse(defaultDocument)
}

// LoadFile parses the rule table at path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: %w", err)
	}
	return Parse(data)
}

var validate = validator.New()

// Parse decodes, validates and compiles a YAML rule table.
func Parse(data []byte) (*Table, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("Parse: decode: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("Parse: validate: %w", err)
	}

	sum := sha256.Sum256(data)
	t := &Table{
		Version:           doc.Version,
		Name:              doc.Name,
		Digest:            "sha256:" + hex.EncodeToString(sum[:]),
		FallbackMessage:   doc.FallbackMessage,
		MinimizeBlockedAt: SeverityHigh,
		channels:          make(map[string]*ChannelPolicy),
	}
	if doc.Policy.MinimizeBlockedAt != "" {
		t.MinimizeBlockedAt, _ = ParseSeverity(doc.Policy.MinimizeBlockedAt)
	}

	if err := t.compileRules(doc.Rules); err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	if err := t.compileViolations(doc.Violations); err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	if err := t.compileDisclaimer(doc.Disclaimer); err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	if err := t.compileChannels(doc.Channels); err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	if err := t.checkOrdering(); err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	return t, nil
}

func (t *Table) compileRules(specs []RuleSpec) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seen[s.ID] {
			return fmt.Errorf("rule %q: duplicate id", s.ID)
		}
		seen[s.ID] = true

		cat := Category(s.Category)
		if want := categoryTiers[cat]; want != s.Tier {
			return fmt.Errorf("rule %q: category %s belongs to tier %d, got %d", s.ID, cat, want, s.Tier)
		}
		ph, err := CompilePhrase(s.Pattern, s.UnlessFollowedBy, s.UnlessPrecededBy)
		if err != nil {
			return fmt.Errorf("rule %q: %w", s.ID, err)
		}
		t.Rules = append(t.Rules, &Rule{
			ID:          s.ID,
			Tier:        s.Tier,
			Category:    cat,
			Replacement: s.Replacement,
			Examples:    s.Examples,
			Phrase:      ph,
		})
	}
	sort.SliceStable(t.Rules, func(i, j int) bool { return t.Rules[i].Tier < t.Rules[j].Tier })
	return nil
}

func (t *Table) compileViolations(specs []ViolationSpec) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seen[s.ID] {
			return fmt.Errorf("violation %q: duplicate id", s.ID)
		}
		seen[s.ID] = true

		ph, err := CompilePhrase(s.Pattern, s.UnlessFollowedBy, s.UnlessPrecededBy)
		if err != nil {
			return fmt.Errorf("violation %q: %w", s.ID, err)
		}
		sev, _ := ParseSeverity(s.Severity)
		t.Violations = append(t.Violations, &ViolationPattern{
			ID:       s.ID,
			Severity: sev,
			Type:     ViolationType(s.Type),
			Phrase:   ph,
		})
	}
	return nil
}

func (t *Table) compileDisclaimer(s DisclaimerSpec) error {
	words := make([]string, 0, len(s.TriggerVocabulary))
	for _, w := range s.TriggerVocabulary {
		words = append(words, regexp.QuoteMeta(strings.TrimSpace(w)))
	}
	re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
	if err != nil {
		return fmt.Errorf("disclaimer triggers: %w", err)
	}
	if !strings.Contains(s.Header, s.DedupeMarker) && !strings.Contains(s.Footer, s.DedupeMarker) {
		return fmt.Errorf("disclaimer: dedupe marker %q does not appear in header or footer", s.DedupeMarker)
	}
	always := make(map[string]bool, len(s.AlwaysFor))
	for _, o := range s.AlwaysFor {
		always[o] = true
	}
	t.Disclaimer = &Disclaimer{
		Header:    s.Header,
		Footer:    s.Footer,
		Marker:    s.DedupeMarker,
		triggers:  re,
		alwaysFor: always,
	}
	return nil
}

func (t *Table) compileChannels(specs []ChannelSpec) error {
	for _, s := range specs {
		if _, dup := t.channels[s.ChannelID]; dup {
			return fmt.Errorf("channel %q: duplicate id", s.ChannelID)
		}
		p, err := CompileChannel(s)
		if err != nil {
			return err
		}
		t.channels[s.ChannelID] = p
		t.channelIDs = append(t.channelIDs, s.ChannelID)
	}
	if _, ok := t.channels[DefaultChannelID]; !ok {
		t.channels[DefaultChannelID] = &ChannelPolicy{ID: DefaultChannelID, Mode: ModeRewriteOnly}
		t.channelIDs = append(t.channelIDs, DefaultChannelID)
	}
	return nil
}

// checkOrdering verifies that every rule matches its own examples and that
// no rule applied earlier matches them. An earlier match would consume part
// of the idiom before the specific rule sees it.
func (t *Table) checkOrdering() error {
	for i, r := range t.Rules {
		for _, ex := range r.Examples {
			if !r.MatchString(ex) {
				return fmt.Errorf("rule %q does not match its example %q", r.ID, ex)
			}
			for _, earlier := range t.Rules[:i] {
				if earlier.MatchString(ex) {
					return fmt.Errorf("%w: rule %q (tier %d) matches example %q of later rule %q (tier %d)",
						ErrOrdering, earlier.ID, earlier.Tier, ex, r.ID, r.Tier)
				}
			}
		}
	}
	return nil
}

// matchCase upper-cases the first letter of repl when the matched text
// starts with an upper-case letter.
func matchCase(matched, repl string) string {
	m, _ := utf8.DecodeRuneInString(matched)
	if !unicode.IsUpper(m) {
		return repl
	}
	r, size := utf8.DecodeRuneInString(repl)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return repl
	}
	return string(unicode.ToUpper(r)) + repl[size:]
}
