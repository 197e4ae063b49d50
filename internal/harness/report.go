package harness

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/triage-ai/uplguard/internal/engine"
	"github.com/triage-ai/uplguard/internal/ruleset"
)

//go:embed report.schema.json
var reportSchema []byte

// ErrRegression is returned when a rule table version that was certified
// before no longer passes.
var ErrRegression = errors.New("compliance regression against certified baseline")

// Report is the persisted result of a harness run.
type Report struct {
	Summary     Summary           `json:"summary"`
	GateProbes  []GateProbeResult `json:"gateProbes"`
	TestResults []TestResult      `json:"testResults"`
}

// Summary aggregates a run.
type Summary struct {
	TotalTests       int       `json:"totalTests"`
	PassedTests      int       `json:"passedTests"`
	ComplianceRate   float64   `json:"complianceRate"`
	ViolationsBefore int       `json:"violationsBefore"`
	ViolationsAfter  int       `json:"violationsAfter"`
	GateProbesTotal  int       `json:"gateProbesTotal"`
	GateProbesPassed int       `json:"gateProbesPassed"`
	RulesetName      string    `json:"rulesetName"`
	RulesetVersion   string    `json:"rulesetVersion"`
	RulesetDigest    string    `json:"rulesetDigest"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

// TestResult is the outcome of one corpus entry.
type TestResult struct {
	Index            int                     `json:"index"`
	Input            string                  `json:"input"`
	Output           string                  `json:"output"`
	Outcome          string                  `json:"outcome"`
	ViolationsBefore int                     `json:"violationsBefore"`
	Violations       []engine.ViolationMatch `json:"violations"`
	RiskLevel        ruleset.Severity        `json:"riskLevel"`
	Idempotent       bool                    `json:"idempotent"`
	Deterministic    bool                    `json:"deterministic"`
	Passed           bool                    `json:"passed"`
	Diff             string                  `json:"diff,omitempty"`
}

// GateProbeResult is the outcome of one forbidden-topic probe.
type GateProbeResult struct {
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
	Passed    bool   `json:"passed"`
}

// Certified reports whether every corpus entry and every gate probe passed.
func (r *Report) Certified() bool {
	s := r.Summary
	return s.TotalTests > 0 && s.PassedTests == s.TotalTests && s.GateProbesPassed == s.GateProbesTotal
}

// Failures returns the failed corpus entries.
func (r *Report) Failures() []TestResult {
	var out []TestResult
	for _, tr := range r.TestResults {
		if !tr.Passed {
			out = append(out, tr)
		}
	}
	return out
}

func reduce(tbl *ruleset.Table, results []TestResult, gates []GateProbeResult) *Report {
	r := &Report{
		GateProbes:  gates,
		TestResults: results,
		Summary: Summary{
			TotalTests:      len(results),
			GateProbesTotal: len(gates),
			RulesetName:     tbl.Name,
			RulesetVersion:  tbl.Version,
			RulesetDigest:   tbl.Digest,
		},
	}
	if r.GateProbes == nil {
		r.GateProbes = []GateProbeResult{}
	}
	for _, tr := range results {
		r.Summary.ViolationsBefore += tr.ViolationsBefore
		r.Summary.ViolationsAfter += len(tr.Violations)
		if tr.Passed {
			r.Summary.PassedTests++
		}
	}
	for _, g := range gates {
		if g.Passed {
			r.Summary.GateProbesPassed++
		}
	}
	r.Summary.ComplianceRate = complianceRate(r.Summary.PassedTests, r.Summary.TotalTests)
	return r
}

// complianceRate is a percentage truncated to two decimals. It is exactly
// 100 only when passed == total, so rounding never certifies a failing run.
func complianceRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	if passed == total {
		return 100
	}
	return math.Floor(float64(passed)*10000/float64(total)) / 100
}

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var obj any
	if err := json.Unmarshal(reportSchema, &obj); err != nil {
		return nil, fmt.Errorf("report schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("report.schema.json", obj); err != nil {
		return nil, fmt.Errorf("report schema: %w", err)
	}
	sch, err := c.Compile("report.schema.json")
	if err != nil {
		return nil, fmt.Errorf("report schema: %w", err)
	}
	return sch, nil
})

// ValidateJSON checks an encoded report against the report schema.
func ValidateJSON(data []byte) error {
	sch, err := schema()
	if err != nil {
		return err
	}
	var inst any
	if err := json.Unmarshal(data, &inst); err != nil {
		return fmt.Errorf("ValidateJSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("ValidateJSON: %w", err)
	}
	return nil
}

// Encode renders the report as indented JSON and validates it against the
// report schema.
func (r *Report) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("Encode: %w", err)
	}
	if err := ValidateJSON(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("Encode: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadReport reads and validates a report written by Encode.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadReport: %w", err)
	}
	if err := ValidateJSON(data); err != nil {
		return nil, fmt.Errorf("LoadReport: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("LoadReport: %w", err)
	}
	return &r, nil
}

// CheckBaseline compares a run with an earlier one. A rule table digest that
// was certified in the baseline and fails now is a regression.
func CheckBaseline(baseline, current *Report) error {
	if baseline.Summary.RulesetDigest != current.Summary.RulesetDigest {
		return nil
	}
	if baseline.Certified() && !current.Certified() {
		return fmt.Errorf("%w: version %s passed %d/%d, now %d/%d",
			ErrRegression, current.Summary.RulesetVersion,
			baseline.Summary.PassedTests, baseline.Summary.TotalTests,
			current.Summary.PassedTests, current.Summary.TotalTests)
	}
	return nil
}
