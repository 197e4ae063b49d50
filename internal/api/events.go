package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// StatsResp is the in-process tally with the active table version.
type StatsResp struct {
	RulesetVersion string            `json:"ruleset_version"`
	Total          uint64            `json:"total"`
	Outcomes       map[string]uint64 `json:"outcomes"`
	RiskLevels     map[string]uint64 `json:"risk_levels"`
	Disclaimers    uint64            `json:"disclaimer_injected"`
	Residual       uint64            `json:"residual_violations"`
}

func (d *Dependencies) handleStats(w http.ResponseWriter, _ *http.Request) {
	s := d.Tally.Snapshot()
	writeJSON(w, http.StatusOK, StatsResp{
		RulesetVersion: d.Registry.Current().Version,
		Total:          s.Total,
		Outcomes:       s.Outcomes,
		RiskLevels:     s.RiskLevels,
		Disclaimers:    s.DisclaimerInjected,
		Residual:       s.ResidualViolations,
	})
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	days := queryInt(q.Get("days"), 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	result, err := d.Reader.GetAnalytics(r.Context(), q.Get("channel_id"), days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryInt(v string, defaultVal int) int {
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
