package engine

import (
	"sort"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

// Scan runs every violation pattern of tbl against text and returns the
// matches ordered by offset. It never modifies text.
func Scan(text string, tbl *ruleset.Table) []ViolationMatch {
	var matches []ViolationMatch
	for _, v := range tbl.Violations {
		for _, m := range v.FindAll(text, "", "") {
			matches = append(matches, ViolationMatch{
				PatternID: v.ID,
				Severity:  v.Severity,
				Type:      v.Type,
				Match:     text[m[0]:m[1]],
				Offset:    m[0],
			})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Offset < matches[j].Offset })
	return matches
}

// RiskLevel returns the risk level of text under tbl.
func RiskLevel(text string, tbl *ruleset.Table) ruleset.Severity {
	return Aggregate(Scan(text, tbl)).RiskLevel
}
