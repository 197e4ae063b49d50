package engine

import (
	"testing"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

func TestAggregate_AllClear(t *testing.T) {
	agg := Aggregate(nil)
	if agg.RiskLevel != ruleset.SeverityLow {
		t.Errorf("expected LOW, got %s", agg.RiskLevel)
	}
	if agg.Reason != "" {
		t.Errorf("expected empty reason, got: %s", agg.Reason)
	}
}

func TestAggregate_SingleMedium(t *testing.T) {
	agg := Aggregate([]ViolationMatch{
		{PatternID: "modal-should", Severity: ruleset.SeverityMedium},
	})
	if agg.RiskLevel != ruleset.SeverityMedium {
		t.Errorf("expected MEDIUM, got %s", agg.RiskLevel)
	}
	if agg.Reason != "matched: modal-should" {
		t.Errorf("unexpected reason: %s", agg.Reason)
	}
}

func TestAggregate_AnyMatchIsAtLeastMedium(t *testing.T) {
	agg := Aggregate([]ViolationMatch{
		{PatternID: "custom", Severity: ruleset.SeverityLow},
	})
	if agg.RiskLevel != ruleset.SeverityMedium {
		t.Errorf("expected MEDIUM, got %s", agg.RiskLevel)
	}
}

func TestAggregate_HighestWins(t *testing.T) {
	tests := []struct {
		name    string
		matches []ViolationMatch
		want    ruleset.Severity
	}{
		{"high over medium", []ViolationMatch{
			{PatternID: "modal-must", Severity: ruleset.SeverityMedium},
			{PatternID: "advice-recommend", Severity: ruleset.SeverityHigh},
		}, ruleset.SeverityHigh},
		{"critical over high", []ViolationMatch{
			{PatternID: "advice-recommend", Severity: ruleset.SeverityHigh},
			{PatternID: "upl-guarantee", Severity: ruleset.SeverityCritical},
			{PatternID: "modal-must", Severity: ruleset.SeverityMedium},
		}, ruleset.SeverityCritical},
		{"order does not matter", []ViolationMatch{
			{PatternID: "upl-guarantee", Severity: ruleset.SeverityCritical},
			{PatternID: "modal-must", Severity: ruleset.SeverityMedium},
		}, ruleset.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.matches).RiskLevel; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestAggregate_ReasonListsEachPatternOnce(t *testing.T) {
	agg := Aggregate([]ViolationMatch{
		{PatternID: "modal-should", Severity: ruleset.SeverityMedium, Offset: 3},
		{PatternID: "modal-must", Severity: ruleset.SeverityMedium, Offset: 10},
		{PatternID: "modal-should", Severity: ruleset.SeverityMedium, Offset: 30},
	})
	if agg.Reason != "matched: modal-should, modal-must" {
		t.Errorf("unexpected reason: %s", agg.Reason)
	}
}

func TestScan_OrderedByOffset(t *testing.T) {
	tbl := mustDefault(t)
	text := "You must respond, and I recommend that the landlord should pay."

	matches := Scan(text, tbl)
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Offset < matches[i-1].Offset {
			t.Errorf("match %d (%s@%d) before %s@%d", i, matches[i].PatternID, matches[i].Offset,
				matches[i-1].PatternID, matches[i-1].Offset)
		}
	}
	for _, m := range matches {
		if text[m.Offset:m.Offset+len(m.Match)] != m.Match {
			t.Errorf("offset %d does not locate %q", m.Offset, m.Match)
		}
	}
	if got := RiskLevel(text, tbl); got != ruleset.SeverityHigh {
		t.Errorf("expected HIGH, got %s", got)
	}
}

func TestScan_RiskLevels(t *testing.T) {
	tbl := mustDefault(t)

	tests := []struct {
		text string
		want ruleset.Severity
	}{
		{"What is my deadline?", ruleset.SeverityLow},
		{"This should be noted in the record.", ruleset.SeverityLow},
		{"The landlord must return the deposit.", ruleset.SeverityMedium},
		{"In your case, the clause is void.", ruleset.SeverityHigh},
		{"You have a strong case against them.", ruleset.SeverityCritical},
		{"You are entitled to a refund.", ruleset.SeverityCritical},
	}
	for _, tt := range tests {
		if got := RiskLevel(tt.text, tbl); got != tt.want {
			t.Errorf("RiskLevel(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}
