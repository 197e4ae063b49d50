package ruleset

import (
	"errors"
	"strings"
	"testing"
)

const testRules = `
  - id: modal-advisory
    tier: 2
    category: directive-modal
    pattern: 'you (?:should|ought to)'
    replacement: 'one option may be to'
    examples: ["You should call the clerk."]
  - id: personal-documents
    tier: 5
    category: personalization
    pattern: 'your (contract|lease)'
    replacement: 'the ${1}'
    examples: ["Read your lease."]
  - id: residual-should
    tier: 7
    category: generic-residual
    pattern: 'should'
    replacement: 'may'
    unless_followed_by: ["be noted"]
    examples: ["The clerk should answer."]
`

const testViolations = `
  - id: modal-should
    pattern: 'should'
    severity: MEDIUM
    type: LEGAL_ADVICE_LANGUAGE
  - id: upl-guarantee
    pattern: 'i guarantee'
    severity: CRITICAL
    type: CRITICAL_UPL_VIOLATION
`

const testChannels = `
  - channel_id: qa
    mode: STRICT_GATE
    redirect_message: "Please use the Defense Builder for that."
    forbidden_phrases: [defenses]
    forbidden_patterns: ['build.*defense']
    probes: ["Tell me about defenses"]
`

func testDoc(rules, violations, channels string) string {
	var b strings.Builder
	b.WriteString(`version: "test-1"
name: "Test Table"
fallback_message: "Please ask about deadlines or procedures."
rules:`)
	b.WriteString(rules)
	b.WriteString("violations:")
	b.WriteString(violations)
	b.WriteString(`disclaimer:
  trigger_vocabulary: [lawsuit, legal action]
  header: "GENERAL INFORMATION ONLY: not legal advice."
  footer: "Consider consulting a licensed attorney."
  dedupe_marker: "GENERAL INFORMATION ONLY"
  always_for: [defense_draft]
`)
	if channels != "" {
		b.WriteString("channels:")
		b.WriteString(channels)
	}
	return b.String()
}

func TestDefault_Loads(t *testing.T) {
	tbl, err := Default()
	if err != nil {
		t.Fatalf("embedded table failed to load: %v", err)
	}
	if tbl.Version != "1.0" {
		t.Errorf("expected version 1.0, got %s", tbl.Version)
	}
	if tbl.Name != "Compliance Version 1.0" {
		t.Errorf("unexpected name: %s", tbl.Name)
	}
	if !strings.HasPrefix(tbl.Digest, "sha256:") {
		t.Errorf("unexpected digest: %s", tbl.Digest)
	}
	if len(tbl.Rules) == 0 || len(tbl.Violations) == 0 {
		t.Fatal("expected rules and violations")
	}
	for i := 1; i < len(tbl.Rules); i++ {
		if tbl.Rules[i].Tier < tbl.Rules[i-1].Tier {
			t.Errorf("rule %s (tier %d) ordered after %s (tier %d)",
				tbl.Rules[i].ID, tbl.Rules[i].Tier, tbl.Rules[i-1].ID, tbl.Rules[i-1].Tier)
		}
	}
	if tbl.MinimizeBlockedAt != SeverityHigh {
		t.Errorf("expected minimize blocked at HIGH, got %s", tbl.MinimizeBlockedAt)
	}
}

func TestDefault_DeterministicDigest(t *testing.T) {
	a, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if a.Digest != b.Digest {
		t.Errorf("digest changed between loads: %s vs %s", a.Digest, b.Digest)
	}
	if a == b {
		t.Error("each load should produce a new table")
	}
}

func TestParse_Valid(t *testing.T) {
	tbl, err := Parse([]byte(testDoc(testRules, testViolations, testChannels)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tbl.Rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(tbl.Rules))
	}
	if tbl.Rules[0].ID != "modal-advisory" || tbl.Rules[2].ID != "residual-should" {
		t.Errorf("unexpected rule order: %s ... %s", tbl.Rules[0].ID, tbl.Rules[2].ID)
	}
	if tbl.Violations[1].Severity != SeverityCritical {
		t.Errorf("expected CRITICAL, got %s", tbl.Violations[1].Severity)
	}
	if tbl.Violations[1].Type != TypeCriticalUPL {
		t.Errorf("expected CRITICAL_UPL_VIOLATION, got %s", tbl.Violations[1].Type)
	}
	if !tbl.Disclaimer.ForcedFor("defense_draft") {
		t.Error("defense_draft should force the disclaimer")
	}
	if tbl.Disclaimer.ForcedFor("research") {
		t.Error("research should not force the disclaimer")
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "rules: [unterminated"},
		{"unknown field", testDoc(testRules, testViolations, "") + "extra: true\n"},
		{"missing fallback", strings.Replace(testDoc(testRules, testViolations, ""),
			`fallback_message: "Please ask about deadlines or procedures."`, "", 1)},
		{"bad regexp", testDoc(`
  - id: broken
    tier: 2
    category: directive-modal
    pattern: 'you (should'
    replacement: 'x'
    examples: ["you should"]
`, testViolations, "")},
		{"tier does not match category", testDoc(`
  - id: misplaced
    tier: 3
    category: directive-modal
    pattern: 'you should'
    replacement: 'one option may be to'
    examples: ["You should call."]
`, testViolations, "")},
		{"example not matched", testDoc(`
  - id: modal
    tier: 2
    category: directive-modal
    pattern: 'you should'
    replacement: 'one option may be to'
    examples: ["You must call."]
`, testViolations, "")},
		{"duplicate rule id", testDoc(testRules+`
  - id: modal-advisory
    tier: 7
    category: generic-residual
    pattern: 'must'
    replacement: 'may need to'
    examples: ["It must be filed."]
`, testViolations, "")},
		{"unknown severity", testDoc(testRules, `
  - id: modal-should
    pattern: 'should'
    severity: SEVERE
    type: LEGAL_ADVICE_LANGUAGE
`, "")},
		{"strict channel without redirect", testDoc(testRules, testViolations, `
  - channel_id: qa
    mode: STRICT_GATE
    forbidden_phrases: [defenses]
`)},
		{"strict channel without probes", testDoc(testRules, testViolations, `
  - channel_id: qa
    mode: STRICT_GATE
    redirect_message: "Please use the Defense Builder for that."
`)},
		{"bad channel pattern", testDoc(testRules, testViolations, `
  - channel_id: qa
    mode: STRICT_GATE
    redirect_message: "Please use the Defense Builder for that."
    forbidden_patterns: ['build.*(defense']
`)},
		{"marker missing from template", strings.Replace(testDoc(testRules, testViolations, ""),
			`dedupe_marker: "GENERAL INFORMATION ONLY"`, `dedupe_marker: "NOT PRESENT"`, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParse_OrderingViolation(t *testing.T) {
	// A generic directive rule at tier 2 consumes the idiom a tier 4 rule
	// targets.
	doc := testDoc(`
  - id: modal
    tier: 2
    category: directive-modal
    pattern: 'you should'
    replacement: 'one option may be to'
    examples: ["You should call."]
  - id: best-approach
    tier: 4
    category: best-practice
    pattern: 'you should consider the best approach'
    replacement: 'one possible approach is'
    examples: ["You should consider the best approach."]
`, testViolations, "")

	_, err := Parse([]byte(doc))
	if !errors.Is(err, ErrOrdering) {
		t.Fatalf("expected ErrOrdering, got %v", err)
	}
}

func TestTable_Channel(t *testing.T) {
	tbl, err := Parse([]byte(testDoc(testRules, testViolations, testChannels)))
	if err != nil {
		t.Fatal(err)
	}

	qa := tbl.Channel("qa")
	if !qa.Strict() {
		t.Fatal("qa should be STRICT_GATE")
	}
	if len(qa.Probes) != 2 {
		t.Fatalf("expected 2 probes, got %d", len(qa.Probes))
	}
	if qa.Probes[0].Kind != ProbeExactPhrase || qa.Probes[1].Kind != ProbeStructuralPattern {
		t.Errorf("unexpected probe kinds: %s, %s", qa.Probes[0].Kind, qa.Probes[1].Kind)
	}

	// Unknown channels and the empty id resolve to the implicit default.
	for _, id := range []string{"", "nope"} {
		p := tbl.Channel(id)
		if p == nil || p.ID != DefaultChannelID || p.Strict() {
			t.Errorf("channel %q: expected implicit REWRITE_ONLY default, got %+v", id, p)
		}
	}
	if _, ok := tbl.LookupChannel("nope"); ok {
		t.Error("LookupChannel should not resolve unknown ids")
	}
	ids := tbl.ChannelIDs()
	if len(ids) != 2 || ids[0] != "qa" || ids[1] != DefaultChannelID {
		t.Errorf("unexpected channel ids: %v", ids)
	}
}

func TestTable_Lockdown(t *testing.T) {
	tbl, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	p := tbl.Lockdown("intake")
	if p.ID != "intake" || !p.Strict() {
		t.Fatalf("expected a strict intake policy, got %+v", p)
	}
	if p.RedirectMessage != tbl.FallbackMessage {
		t.Errorf("expected the fallback message, got %q", p.RedirectMessage)
	}
	for _, text := range []string{"x", "What is the filing fee?", "line one\nline two"} {
		if !p.Probes[0].Pattern.MatchString(text) {
			t.Errorf("expected %q to be gated", text)
		}
	}
}

func TestTable_MinimizeAllowed(t *testing.T) {
	tbl, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		level Severity
		want  bool
	}{
		{SeverityLow, true},
		{SeverityMedium, true},
		{SeverityHigh, false},
		{SeverityCritical, false},
	}
	for _, tt := range tests {
		if got := tbl.MinimizeAllowed(tt.level); got != tt.want {
			t.Errorf("MinimizeAllowed(%s) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestRule_ApplyKeepsCase(t *testing.T) {
	tbl, err := Parse([]byte(testDoc(testRules, testViolations, "")))
	if err != nil {
		t.Fatal(err)
	}
	docs := tbl.Rules[1]

	tests := []struct {
		text string
		want string
	}{
		{"your lease", "the lease"},
		{"Your Lease", "The Lease"},
		{"YOUR CONTRACT", "The CONTRACT"},
	}
	for _, tt := range tests {
		locs := docs.FindAll(tt.text, "", "")
		if len(locs) != 1 {
			t.Fatalf("%q: expected one match, got %d", tt.text, len(locs))
		}
		if got := docs.Apply(tt.text, locs[0]); got != tt.want {
			t.Errorf("Apply(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestSeverity_Text(t *testing.T) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back Severity
		if err := back.UnmarshalText(b); err != nil {
			t.Fatal(err)
		}
		if back != s {
			t.Errorf("%s: got %s", s, back)
		}
	}
	if _, ok := ParseSeverity("severe"); ok {
		t.Error("unknown severity should not parse")
	}
	if s, ok := ParseSeverity(" high "); !ok || s != SeverityHigh {
		t.Errorf("expected HIGH, got %s (ok=%v)", s, ok)
	}
}

func TestRegistry_Swap(t *testing.T) {
	v1, err := Parse([]byte(testDoc(testRules, testViolations, "")))
	if err != nil {
		t.Fatal(err)
	}
	v2, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(v1)
	snapshot := reg.Current()
	if prev := reg.Swap(v2); prev != v1 {
		t.Error("Swap should return the previous table")
	}
	if reg.Current() != v2 {
		t.Error("Current should return the swapped-in table")
	}
	if snapshot.Version != "test-1" {
		t.Errorf("held snapshot changed: %s", snapshot.Version)
	}
}
