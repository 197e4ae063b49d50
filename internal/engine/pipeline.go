package engine

import (
	"github.com/triage-ai/uplguard/internal/ruleset"
	"go.uber.org/zap"
)

// Process runs text through the compliance pipeline under tbl:
//
//  1. STRICT_GATE channel and forbidden topic → redirect message, stop
//  2. Neutralize
//  3. Degenerate output → fallback message, stop
//  4. Scan the neutralized text (telemetry only)
//  5. Inject the disclaimer
//
// A nil policy means the table's default channel.
func Process(tbl *ruleset.Table, text string, policy *ruleset.ChannelPolicy, outputType OutputType) *ComplianceResult {
	if policy == nil {
		policy = tbl.Channel(ruleset.DefaultChannelID)
	}

	if policy.Strict() {
		if probe, ok := MatchProbe(text, policy); ok {
			return &ComplianceResult{
				OriginalText:    text,
				TransformedText: policy.RedirectMessage,
				Modified:        text != policy.RedirectMessage,
				RiskLevel:       ruleset.SeverityLow,
				Reason:          "gated: " + probe.Kind.String() + " " + probe.Value,
				Outcome:         OutcomeRedirected,
				Gated:           true,
				MinimizeAllowed: tbl.MinimizeAllowed(ruleset.SeverityLow),
				RulesetVersion:  tbl.Version,
			}
		}
	}

	neutralized, rewritten := Neutralize(text, tbl)
	if Degenerate(neutralized, text) {
		return fallbackResult(tbl, text)
	}

	violations := Scan(neutralized, tbl)
	agg := Aggregate(violations)

	final, injected := Inject(neutralized, tbl.Disclaimer.ForcedFor(string(outputType)), tbl.Disclaimer)

	outcome := OutcomeUnchanged
	if rewritten {
		outcome = OutcomeNeutralized
	}
	return &ComplianceResult{
		OriginalText:       text,
		TransformedText:    final,
		Modified:           final != text,
		Violations:         violations,
		RiskLevel:          agg.RiskLevel,
		Reason:             agg.Reason,
		DisclaimerInjected: injected,
		Outcome:            outcome,
		MinimizeAllowed:    tbl.MinimizeAllowed(agg.RiskLevel),
		RulesetVersion:     tbl.Version,
	}
}

func fallbackResult(tbl *ruleset.Table, text string) *ComplianceResult {
	return &ComplianceResult{
		OriginalText:    text,
		TransformedText: tbl.FallbackMessage,
		Modified:        text != tbl.FallbackMessage,
		RiskLevel:       ruleset.SeverityLow,
		Reason:          "degenerate output",
		Outcome:         OutcomeFallback,
		MinimizeAllowed: tbl.MinimizeAllowed(ruleset.SeverityLow),
		RulesetVersion:  tbl.Version,
	}
}

// Pipeline runs Process against the registry's active table snapshot.
// It is safe for concurrent use.
type Pipeline struct {
	registry *ruleset.Registry
	logger   *zap.Logger
}

// NewPipeline creates a pipeline serving the tables held by registry.
func NewPipeline(registry *ruleset.Registry, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		registry: registry,
		logger:   logger,
	}
}

// Table returns the active table snapshot.
func (p *Pipeline) Table() *ruleset.Table {
	return p.registry.Current()
}

// Process runs one call against a single table snapshot. It never panics:
// an internal failure yields the fallback result.
func (p *Pipeline) Process(text string, policy *ruleset.ChannelPolicy, outputType OutputType) *ComplianceResult {
	return p.ProcessWith(p.registry.Current(), text, policy, outputType)
}

// ProcessWith is Process against a snapshot the caller already holds, so a
// channel policy resolved from tbl is applied with the same table.
func (p *Pipeline) ProcessWith(tbl *ruleset.Table, text string, policy *ruleset.ChannelPolicy, outputType OutputType) (res *ComplianceResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("compliance pipeline panic, returning fallback",
				zap.Any("panic", r),
				zap.String("ruleset_version", tbl.Version),
			)
			res = fallbackResult(tbl, text)
		}
	}()

	res = Process(tbl, text, policy, outputType)

	if res.RiskLevel == ruleset.SeverityCritical {
		p.logger.Warn("critical violation survived neutralization",
			zap.String("ruleset_version", tbl.Version),
			zap.String("reason", res.Reason),
		)
	}
	return res
}
