// Package harness drives the compliance pipeline over a synthetic corpus,
// scores the results, and issues a certificate when every entry passes.
package harness

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/triage-ai/uplguard/internal/engine"
	"github.com/triage-ai/uplguard/internal/ruleset"
)

// DefaultSize is the corpus size used when none is configured.
const DefaultSize = 5000

// Config controls a harness run.
type Config struct {
	Size    int
	Workers int
}

// Harness evaluates one rule table snapshot.
type Harness struct {
	table    *ruleset.Table
	pipeline *engine.Pipeline
	logger   *zap.Logger
}

// New creates a harness pinned to tbl.
func New(tbl *ruleset.Table, logger *zap.Logger) *Harness {
	return &Harness{
		table:    tbl,
		pipeline: engine.NewPipeline(ruleset.NewRegistry(tbl), logger),
		logger:   logger,
	}
}

// Run evaluates the corpus and every gate probe in parallel and reduces the
// per-entry results into a report. Each worker writes only its own result
// slot; counting happens after all workers finish.
func (h *Harness) Run(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	corpus := BuildCorpus(cfg.Size)
	probes := h.gateProbes()

	results := make([]TestResult, len(corpus))
	gates := make([]GateProbeResult, len(probes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i, e := range corpus {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = h.evaluate(e)
			return nil
		})
	}
	for i, p := range probes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			gates[i] = h.evaluateProbe(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	report := reduce(h.table, results, gates)
	report.Summary.GeneratedAt = time.Now().UTC()

	h.logger.Info("harness run complete",
		zap.String("ruleset_version", h.table.Version),
		zap.Int("total", report.Summary.TotalTests),
		zap.Int("passed", report.Summary.PassedTests),
		zap.Float64("compliance_rate", report.Summary.ComplianceRate),
		zap.Int("violations_before", report.Summary.ViolationsBefore),
		zap.Int("violations_after", report.Summary.ViolationsAfter),
		zap.Int("gate_probes_failed", report.Summary.GateProbesTotal-report.Summary.GateProbesPassed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// evaluate scores one entry. It passes when the pipeline output carries no
// violation, neutralization is idempotent on it, and a second run yields
// the same output.
func (h *Harness) evaluate(e Entry) TestResult {
	before := engine.Scan(e.Text, h.table)
	res := h.pipeline.Process(e.Text, nil, engine.OutputResearch)
	again := h.pipeline.Process(e.Text, nil, engine.OutputResearch)

	once, _ := engine.Neutralize(e.Text, h.table)
	twice, _ := engine.Neutralize(once, h.table)

	after := engine.Scan(res.TransformedText, h.table)
	tr := TestResult{
		Index:            e.Index,
		Input:            e.Text,
		Output:           res.TransformedText,
		Outcome:          res.Outcome.String(),
		ViolationsBefore: len(before),
		Violations:       after,
		RiskLevel:        engine.Aggregate(after).RiskLevel,
		Idempotent:       once == twice,
		Deterministic:    again.TransformedText == res.TransformedText,
	}
	if tr.Violations == nil {
		tr.Violations = []engine.ViolationMatch{}
	}
	tr.Passed = len(after) == 0 && tr.Idempotent && tr.Deterministic

	if !tr.Passed {
		if !tr.Idempotent {
			tr.Diff = patchText(once, twice)
		} else {
			tr.Diff = patchText(e.Text, res.TransformedText)
		}
	}
	return tr
}

type probe struct {
	policy *ruleset.ChannelPolicy
	text   string
}

func (h *Harness) gateProbes() []probe {
	var out []probe
	for _, id := range h.table.ChannelIDs() {
		p, _ := h.table.LookupChannel(id)
		if !p.Strict() {
			continue
		}
		for _, s := range p.Samples {
			out = append(out, probe{policy: p, text: s})
		}
	}
	return out
}

// evaluateProbe passes when the probe is redirected verbatim.
func (h *Harness) evaluateProbe(p probe) GateProbeResult {
	res := h.pipeline.Process(p.text, p.policy, engine.OutputResearch)
	return GateProbeResult{
		ChannelID: p.policy.ID,
		Text:      p.text,
		Passed:    res.Gated && res.TransformedText == p.policy.RedirectMessage,
	}
}

// patchText renders the change from a to b as diff-match-patch patch text.
func patchText(a, b string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(a, diffs))
}
