package engine

import (
	"testing"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

func mustDefault(t testing.TB) *ruleset.Table {
	t.Helper()
	tbl, err := ruleset.Default()
	if err != nil {
		t.Fatalf("load embedded table: %v", err)
	}
	return tbl
}

func TestNeutralize(t *testing.T) {
	tbl := mustDefault(t)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"directive modal", "You should file a lawsuit against the breaching party.",
			"One option may be to file a lawsuit against the breaching party."},
		{"personalization", "In your case, the intellectual property terms may need revision.",
			"In similar situations, the intellectual property terms may need revision."},
		{"document reference", "Review your contract for an arbitration clause.",
			"Review the contract for an arbitration clause."},
		{"rights", "Your rights under the lease include a habitable home.",
			"A party's rights under the lease include a habitable home."},
		{"critical guarantee", "I guarantee that the judge will rule for you.",
			"No outcome can be promised, but the judge will rule for you."},
		{"negative modal", "You should not sign anything until you review it.",
			"Some people choose not to sign anything until you review it."},
		{"upper case input", "YOU MUST respond.", "It is generally important to respond."},
		{"connective", "Therefore you may recover court costs.",
			"Therefore, a party may recover court costs."},
		{"residual should", "The landlord should return the deposit within 30 days.",
			"The landlord may return the deposit within 30 days."},
		{"residual inflection", "The buyer insisted that the price was fixed.",
			"The buyer maintained that the price was fixed."},
		{"residual phrase", "Insist on a written receipt.", "Ask for a written receipt."},
		{"demand", "The tenant can demand repairs in writing.",
			"The tenant can request repairs in writing."},
		{"cascade across tiers", "You have to pay because the lease requires it.",
			"It is generally important to pay because the lease calls for it."},
		{"safe should construct", "This should be considered before signing.",
			"This should be considered before signing."},
		{"safe advisory construct", "You should be considered for the role.",
			"You should be considered for the role."},
		{"repeated obligation", "You must must must comply.", "It is generally important to comply."},
		{"repeated residual", "Each party must must sign the form.", "Each party may need to sign the form."},
		{"demand letter", "Send a demand letter first.", "Send a demand letter first."},
		{"factual", "What is my deadline?", "What is my deadline?"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, modified := Neutralize(tt.input, tbl)
			if got != tt.want {
				t.Errorf("Neutralize(%q)\n got: %q\nwant: %q", tt.input, got, tt.want)
			}
			if modified != (tt.input != tt.want) {
				t.Errorf("expected modified=%v", tt.input != tt.want)
			}
		})
	}
}

// cascadeDoc has a tier 2 replacement that contains the tier 7 token.
const cascadeDoc = `
version: "test"
name: "cascade"
fallback_message: "Ask me about deadlines or fees."
rules:
  - id: ought
    tier: 2
    category: directive-modal
    pattern: 'you ought to'
    replacement: 'people should'
    examples: ["You ought to go."]
  - id: should
    tier: 7
    category: generic-residual
    pattern: 'should'
    replacement: 'may'
    examples: ["It should end."]
violations:
  - id: guarantee
    pattern: 'i guarantee'
    severity: CRITICAL
    type: CRITICAL_UPL_VIOLATION
disclaimer:
  trigger_vocabulary: [lawsuit]
  header: "INFO"
  footer: "END"
  dedupe_marker: "INFO"
`

func TestNeutralize_ReplacementsAreProtectedWithinPass(t *testing.T) {
	tbl, err := ruleset.Parse([]byte(cascadeDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"replacement keeps its token", "You ought to go.", "People should go."},
		{"original token still rewritten", "You ought to go, and it should end.",
			"People should go, and it may end."},
		{"token alone", "It should end.", "It may end."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Neutralize(tt.input, tbl)
			if got != tt.want {
				t.Errorf("Neutralize(%q)\n got: %q\nwant: %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNeutralize_Idempotent(t *testing.T) {
	tbl := mustDefault(t)

	inputs := []string{
		"You should file a lawsuit against the breaching party.",
		"We recommend that you contact the other party. Your best option is to negotiate.",
		"Based on the facts you described, you must respond. This means you can withhold rent.",
		"My advice is to sue. You have a strong case against them, and you will win.",
		"It is essential for you to insist on a receipt; the landlord must not demand cash.",
	}
	for _, r := range tbl.Rules {
		inputs = append(inputs, r.Examples...)
	}

	for _, in := range inputs {
		once, _ := Neutralize(in, tbl)
		twice, modified := Neutralize(once, tbl)
		if twice != once || modified {
			t.Errorf("not idempotent for %q:\n once: %q\ntwice: %q", in, once, twice)
		}
	}
}

func TestNeutralize_ClearsViolations(t *testing.T) {
	tbl := mustDefault(t)

	for _, r := range tbl.Rules {
		for _, ex := range r.Examples {
			out, _ := Neutralize(ex, tbl)
			if v := Scan(out, tbl); len(v) > 0 {
				t.Errorf("rule %s: %q still matches %s after neutralization: %q",
					r.ID, ex, v[0].PatternID, out)
			}
		}
	}
}

func TestNeutralize_Deterministic(t *testing.T) {
	tbl := mustDefault(t)
	in := "In your situation you should insist on the terms of your agreement."

	first, _ := Neutralize(in, tbl)
	for i := 0; i < 50; i++ {
		if got, _ := Neutralize(in, tbl); got != first {
			t.Fatalf("run %d differs: %q vs %q", i, got, first)
		}
	}
}

func BenchmarkNeutralize(b *testing.B) {
	tbl := mustDefault(b)
	text := "Based on the facts you described, you should file a motion. In your case, " +
		"the best approach is to review your contract. The court will require proof, " +
		"and you must not miss the deadline. Therefore you may recover costs."
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Neutralize(text, tbl)
	}
}
