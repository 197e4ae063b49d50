package storage

import "sync/atomic"

// Tally counts compliance events in process and forwards each one to the
// next writer. Dashboards that cannot reach ClickHouse read these counters.
type Tally struct {
	next EventWriter

	total              atomic.Uint64
	unchanged          atomic.Uint64
	neutralized        atomic.Uint64
	redirected         atomic.Uint64
	fallback           atomic.Uint64
	disclaimerInjected atomic.Uint64
	residual           atomic.Uint64

	riskLow      atomic.Uint64
	riskMedium   atomic.Uint64
	riskHigh     atomic.Uint64
	riskCritical atomic.Uint64
}

// TallySnapshot is a point-in-time copy of the counters.
type TallySnapshot struct {
	Total              uint64            `json:"total"`
	Outcomes           map[string]uint64 `json:"outcomes"`
	RiskLevels         map[string]uint64 `json:"risk_levels"`
	DisclaimerInjected uint64            `json:"disclaimer_injected"`
	// ResidualViolations counts events that still carried a scanner match
	// after neutralization.
	ResidualViolations uint64 `json:"residual_violations"`
}

// NewTally wraps next. A nil next only counts.
func NewTally(next EventWriter) *Tally {
	return &Tally{next: next}
}

// Write counts event and forwards it. It never blocks beyond the next
// writer's own Write.
func (t *Tally) Write(event *ComplianceEvent) {
	t.total.Add(1)
	switch event.Outcome {
	case "unchanged":
		t.unchanged.Add(1)
	case "neutralized":
		t.neutralized.Add(1)
	case "redirected":
		t.redirected.Add(1)
	case "fallback":
		t.fallback.Add(1)
	}
	switch event.RiskLevel {
	case "LOW":
		t.riskLow.Add(1)
	case "MEDIUM":
		t.riskMedium.Add(1)
	case "HIGH":
		t.riskHigh.Add(1)
	case "CRITICAL":
		t.riskCritical.Add(1)
	}
	if event.DisclaimerInjected {
		t.disclaimerInjected.Add(1)
	}
	if len(event.ViolationIDs) > 0 {
		t.residual.Add(1)
	}

	if t.next != nil {
		t.next.Write(event)
	}
}

// Close closes the next writer.
func (t *Tally) Close() {
	if t.next != nil {
		t.next.Close()
	}
}

// Snapshot returns the current counters.
func (t *Tally) Snapshot() TallySnapshot {
	return TallySnapshot{
		Total: t.total.Load(),
		Outcomes: map[string]uint64{
			"unchanged":   t.unchanged.Load(),
			"neutralized": t.neutralized.Load(),
			"redirected":  t.redirected.Load(),
			"fallback":    t.fallback.Load(),
		},
		RiskLevels: map[string]uint64{
			"LOW":      t.riskLow.Load(),
			"MEDIUM":   t.riskMedium.Load(),
			"HIGH":     t.riskHigh.Load(),
			"CRITICAL": t.riskCritical.Load(),
		},
		DisclaimerInjected: t.disclaimerInjected.Load(),
		ResidualViolations: t.residual.Load(),
	}
}
