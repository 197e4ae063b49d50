package engine

import (
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/triage-ai/uplguard/internal/ruleset"
	"go.uber.org/zap"
)

const redirectCaseQA = "For defense strategies, please use the Defense Builder feature. I can answer other questions about your case."

const fallbackText = "I can answer questions about deadlines, amounts, and procedures. What would you like to know?"

func TestProcess_DirectiveWithLitigationTopic(t *testing.T) {
	tbl := mustDefault(t)
	res := Process(tbl, "You should file a lawsuit against the breaching party.", nil, OutputResearch)

	lower := strings.ToLower(res.TransformedText)
	if strings.Contains(lower, "you should") || strings.Contains(lower, "you must") {
		t.Errorf("directive survived: %q", res.TransformedText)
	}
	if !strings.HasPrefix(res.TransformedText, "GENERAL INFORMATION ONLY") {
		t.Errorf("expected disclaimer prefix, got %q", res.TransformedText)
	}
	if !res.DisclaimerInjected || !res.Modified {
		t.Errorf("expected injected and modified, got %+v", res)
	}
	if res.RiskLevel >= ruleset.SeverityHigh {
		t.Errorf("expected risk below HIGH, got %s", res.RiskLevel)
	}
	if lvl := RiskLevel(res.TransformedText, tbl); lvl >= ruleset.SeverityHigh {
		t.Errorf("output rescans at %s", lvl)
	}
	if res.Outcome != OutcomeNeutralized {
		t.Errorf("expected neutralized, got %s", res.Outcome)
	}
}

func TestProcess_Personalization(t *testing.T) {
	tbl := mustDefault(t)
	res := Process(tbl, "In your case, the intellectual property terms may need revision.", nil, OutputDocumentAnalysis)

	want := "In similar situations, the intellectual property terms may need revision."
	if res.TransformedText != want {
		t.Errorf("expected %q, got %q", want, res.TransformedText)
	}
	if len(res.Violations) != 0 {
		t.Errorf("expected zero violations, got %v", res.Violations)
	}
	if res.RiskLevel != ruleset.SeverityLow {
		t.Errorf("expected LOW, got %s", res.RiskLevel)
	}
}

func TestProcess_StrictGateRedirect(t *testing.T) {
	tbl := mustDefault(t)
	policy := tbl.Channel("case-qa")

	res := Process(tbl, "Tell me about defenses", policy, OutputResearch)
	if res.TransformedText != redirectCaseQA {
		t.Errorf("expected redirect message, got %q", res.TransformedText)
	}
	if !res.Gated || res.Outcome != OutcomeRedirected {
		t.Errorf("expected gated redirect, got %+v", res)
	}
	if res.Violations != nil || res.DisclaimerInjected {
		t.Error("gated result should skip scanning and disclaimer")
	}
	if !strings.HasPrefix(res.Reason, "gated: EXACT_PHRASE") {
		t.Errorf("unexpected reason: %s", res.Reason)
	}

	// Gated text is discarded whole, even when it is also advice-laden.
	res = Process(tbl, "You should build a defense around the lack of evidence.", policy, OutputResearch)
	if res.TransformedText != redirectCaseQA {
		t.Errorf("expected redirect message, got %q", res.TransformedText)
	}
}

func TestProcess_GateOnlyForStrictChannels(t *testing.T) {
	tbl := mustDefault(t)

	res := Process(tbl, "Tell me about defenses", tbl.Channel("defense-builder"), OutputResearch)
	if res.Gated {
		t.Error("REWRITE_ONLY channel should not gate")
	}
	if res.TransformedText != "Tell me about defenses" {
		t.Errorf("unexpected text: %q", res.TransformedText)
	}
}

func TestProcess_FactualUnchanged(t *testing.T) {
	tbl := mustDefault(t)

	for _, policy := range []*ruleset.ChannelPolicy{nil, tbl.Channel("case-qa")} {
		res := Process(tbl, "What is my deadline?", policy, OutputResearch)
		if res.TransformedText != "What is my deadline?" {
			t.Errorf("expected unchanged text, got %q", res.TransformedText)
		}
		if res.Modified || res.DisclaimerInjected {
			t.Errorf("expected modified=false and no disclaimer, got %+v", res)
		}
		if res.RiskLevel != ruleset.SeverityLow {
			t.Errorf("expected LOW, got %s", res.RiskLevel)
		}
		if res.Outcome != OutcomeUnchanged {
			t.Errorf("expected unchanged outcome, got %s", res.Outcome)
		}
		if !res.MinimizeAllowed {
			t.Error("LOW risk should allow minimize")
		}
	}
}

func TestProcess_DegenerateFallback(t *testing.T) {
	tbl := mustDefault(t)

	for _, text := range []string{
		"",
		"Sue.",
		"** **",
		"\xff\xfe\xfd invalid bytes in an otherwise long text",
	} {
		res := Process(tbl, text, nil, OutputCaseSuggestion)
		if res.TransformedText != fallbackText {
			t.Errorf("%q: expected fallback, got %q", text, res.TransformedText)
		}
		if res.Outcome != OutcomeFallback {
			t.Errorf("%q: expected fallback outcome, got %s", text, res.Outcome)
		}
		if res.DisclaimerInjected {
			t.Errorf("%q: fallback should not carry a disclaimer", text)
		}
	}
}

func TestProcess_InputAsterisksAreNotDegenerate(t *testing.T) {
	tbl := mustDefault(t)

	for _, text := range []string{
		"Filing fees are about $75 in most counties.*",
		"The answer is due in 30 days (see note*).",
	} {
		res := Process(tbl, text, nil, OutputResearch)
		if res.Outcome == OutcomeFallback {
			t.Errorf("%q: informational text replaced by the fallback", text)
		}
		if res.TransformedText != text {
			t.Errorf("%q: expected unchanged text, got %q", text, res.TransformedText)
		}
	}
}

func TestProcess_ForcedDisclaimer(t *testing.T) {
	tbl := mustDefault(t)
	text := "The response window is usually thirty days."

	for _, tt := range []struct {
		outputType OutputType
		want       bool
	}{
		{OutputResearch, false},
		{OutputEducation, false},
		{OutputCaseSuggestion, true},
		{OutputDefenseDraft, true},
	} {
		res := Process(tbl, text, nil, tt.outputType)
		if res.DisclaimerInjected != tt.want {
			t.Errorf("%s: expected injected=%v", tt.outputType, tt.want)
		}
	}
}

func TestProcess_Deterministic(t *testing.T) {
	tbl := mustDefault(t)
	text := "Based on the facts you described, you must respond before the hearing. Your best option is to call an attorney."

	first := Process(tbl, text, nil, OutputResearch)
	for i := 0; i < 20; i++ {
		if got := Process(tbl, text, nil, OutputResearch); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, got, first)
		}
	}
}

func TestProcess_OutputIsStable(t *testing.T) {
	tbl := mustDefault(t)

	for _, text := range []string{
		"You should file a lawsuit against the breaching party.",
		"My recommendation is to settle. You have a good case.",
		"The filing fee is $435 and is due at filing.",
	} {
		once := Process(tbl, text, nil, OutputResearch)
		twice := Process(tbl, once.TransformedText, nil, OutputResearch)
		if twice.TransformedText != once.TransformedText {
			t.Errorf("processing output again changed it:\n%q\n%q", once.TransformedText, twice.TransformedText)
		}
	}
}

func TestPipeline_RecoversToFallback(t *testing.T) {
	// A table without a disclaimer template panics inside Process.
	broken := &ruleset.Table{
		Version:           "broken",
		FallbackMessage:   fallbackText,
		MinimizeBlockedAt: ruleset.SeverityHigh,
	}
	p := NewPipeline(ruleset.NewRegistry(broken), zap.NewNop())

	res := p.Process("The filing fee is due on Monday.", nil, OutputResearch)
	if res.TransformedText != fallbackText || res.Outcome != OutcomeFallback {
		t.Errorf("expected fallback, got %+v", res)
	}
	if res.RulesetVersion != "broken" {
		t.Errorf("expected ruleset version of the snapshot, got %s", res.RulesetVersion)
	}
}

func TestPipeline_UsesCurrentSnapshot(t *testing.T) {
	tbl := mustDefault(t)
	reg := ruleset.NewRegistry(tbl)
	p := NewPipeline(reg, zap.NewNop())

	if got := p.Process("What is my deadline?", nil, OutputResearch).RulesetVersion; got != "1.0" {
		t.Errorf("expected version 1.0, got %s", got)
	}

	next := mustDefault(t)
	next.Version = "1.1"
	reg.Swap(next)

	if got := p.Process("What is my deadline?", nil, OutputResearch).RulesetVersion; got != "1.1" {
		t.Errorf("expected version 1.1 after swap, got %s", got)
	}
	if p.Table() != next {
		t.Error("Table should return the active snapshot")
	}
}

func TestPipeline_Concurrent(t *testing.T) {
	tbl := mustDefault(t)
	p := NewPipeline(ruleset.NewRegistry(tbl), zap.NewNop())
	text := "In your situation you should insist on the terms of your agreement."
	want := Process(tbl, text, nil, OutputResearch).TransformedText

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := p.Process(text, nil, OutputResearch).TransformedText; got != want {
				errs <- got
			}
		}()
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Errorf("concurrent result differs: %q", got)
	}
}

func BenchmarkPipeline_Process(b *testing.B) {
	tbl := mustDefault(b)
	p := NewPipeline(ruleset.NewRegistry(tbl), zap.NewNop())
	text := "You should file a lawsuit. In your case the best approach is to review your lease with an attorney."
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Process(text, nil, OutputResearch)
	}
}
