package engine

import (
	"strings"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

// AggregateResult holds the derived risk level and a reason naming the
// patterns that fired.
type AggregateResult struct {
	RiskLevel ruleset.Severity
	Reason    string
}

// Aggregate derives the risk level of a set of scanner matches.
//
// Rules (applied in order):
//  1. Any CRITICAL match → CRITICAL
//  2. Any HIGH match     → HIGH
//  3. Any match          → MEDIUM
//  4. Otherwise          → LOW
func Aggregate(matches []ViolationMatch) AggregateResult {
	level := ruleset.SeverityLow
	var names []string
	seen := make(map[string]bool, len(matches))

	for _, m := range matches {
		if m.Severity > level {
			level = m.Severity
		}
		if level < ruleset.SeverityMedium {
			level = ruleset.SeverityMedium
		}
		if !seen[m.PatternID] {
			seen[m.PatternID] = true
			names = append(names, m.PatternID)
		}
	}

	reason := ""
	if len(names) > 0 {
		reason = "matched: " + strings.Join(names, ", ")
	}

	return AggregateResult{
		RiskLevel: level,
		Reason:    reason,
	}
}
