package chread

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/triage-ai/uplguard/internal/storage"
)

// Reader provides read access to the ClickHouse compliance_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(ctx context.Context, dsn string, logger *zap.Logger) (*Reader, error) {
	conn, err := storage.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// SummaryStats holds outcome counts.
type SummaryStats struct {
	Total              int `json:"total"`
	Unchanged          int `json:"unchanged"`
	Neutralized        int `json:"neutralized"`
	Redirected         int `json:"redirected"`
	Fallback           int `json:"fallback"`
	DisclaimerInjected int `json:"disclaimer_injected"`
	ResidualViolations int `json:"residual_violations"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// ViolationCount holds a violation pattern id and how often it survived
// neutralization.
type ViolationCount struct {
	PatternID string `json:"pattern_id"`
	Count     int    `json:"count"`
}

// VersionCount holds a rule table version and its request count.
type VersionCount struct {
	Version string `json:"version"`
	Count   int    `json:"count"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	RiskLevels         map[string]int     `json:"risk_levels"`
	RedirectsOverTime  []TimeSeriesBucket `json:"redirects_over_time"`
	TopViolations      []ViolationCount   `json:"top_violations"`
	RulesetVersions    []VersionCount     `json:"ruleset_versions"`
	LatencyPercentiles LatencyStats       `json:"latency_percentiles"`
}

// GetAnalytics returns aggregated compliance analytics over the given number
// of days. An empty channelID covers every channel.
func (r *Reader) GetAnalytics(ctx context.Context, channelID string, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	where := "timestamp >= @range_start"
	if channelID != "" {
		where = "channel_id = @channel_id AND " + where
	}
	baseArgs := []any{
		clickhouse.Named("channel_id", channelID),
		clickhouse.Named("range_start", rangeStart),
	}

	result := &AnalyticsResult{RiskLevels: map[string]int{}}

	// Summary counts
	var total, unchanged, neutralized, redirected, fallback, disclaimers, residual uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() AS total, "+
			"countIf(outcome = 'unchanged') AS unchanged, "+
			"countIf(outcome = 'neutralized') AS neutralized, "+
			"countIf(outcome = 'redirected') AS redirected, "+
			"countIf(outcome = 'fallback') AS fallback, "+
			"countIf(disclaimer_injected = 1) AS disclaimers, "+
			"countIf(notEmpty(violation_ids)) AS residual "+
			"FROM compliance_events WHERE "+where,
		baseArgs...,
	).Scan(&total, &unchanged, &neutralized, &redirected, &fallback, &disclaimers, &residual)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		Total:              int(total),
		Unchanged:          int(unchanged),
		Neutralized:        int(neutralized),
		Redirected:         int(redirected),
		Fallback:           int(fallback),
		DisclaimerInjected: int(disclaimers),
		ResidualViolations: int(residual),
	}

	// Risk distribution
	riskRows, err := r.conn.Query(ctx,
		"SELECT risk_level, count() AS count FROM compliance_events WHERE "+where+
			" GROUP BY risk_level",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics risk_levels: %w", err)
	}
	defer func() { _ = riskRows.Close() }()
	for riskRows.Next() {
		var level string
		var count uint64
		if err := riskRows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics risk_levels scan: %w", err)
		}
		result.RiskLevels[level] = int(count)
	}

	// Redirects over time (hourly)
	redirectRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) AS hour, count() AS count "+
			"FROM compliance_events WHERE "+where+" AND outcome = 'redirected' "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics redirects_over_time: %w", err)
	}
	defer func() { _ = redirectRows.Close() }()
	for redirectRows.Next() {
		var hour time.Time
		var count uint64
		if err := redirectRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics redirects_over_time scan: %w", err)
		}
		result.RedirectsOverTime = append(result.RedirectsOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	// Residual violations by pattern
	violationRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(violation_ids) AS pattern_id, count() AS count "+
			"FROM compliance_events WHERE "+where+
			" GROUP BY pattern_id ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_violations: %w", err)
	}
	defer func() { _ = violationRows.Close() }()
	for violationRows.Next() {
		var id string
		var count uint64
		if err := violationRows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_violations scan: %w", err)
		}
		result.TopViolations = append(result.TopViolations, ViolationCount{PatternID: id, Count: int(count)})
	}

	versionRows, err := r.conn.Query(ctx,
		"SELECT ruleset_version, count() AS count FROM compliance_events WHERE "+where+
			" GROUP BY ruleset_version ORDER BY ruleset_version",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics ruleset_versions: %w", err)
	}
	defer func() { _ = versionRows.Close() }()
	for versionRows.Next() {
		var version string
		var count uint64
		if err := versionRows.Scan(&version, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics ruleset_versions scan: %w", err)
		}
		result.RulesetVersions = append(result.RulesetVersions, VersionCount{Version: version, Count: int(count)})
	}

	// Latency percentiles (last 24h)
	latencyWhere := "timestamp >= @day_start"
	if channelID != "" {
		latencyWhere = "channel_id = @channel_id AND " + latencyWhere
	}
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms) AS p50, "+
			"quantile(0.95)(latency_ms) AS p95, "+
			"quantile(0.99)(latency_ms) AS p99 "+
			"FROM compliance_events WHERE "+latencyWhere,
		clickhouse.Named("channel_id", channelID),
		clickhouse.Named("day_start", dayStart),
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	// Ensure slices are non-nil for JSON serialization
	if result.RedirectsOverTime == nil {
		result.RedirectsOverTime = []TimeSeriesBucket{}
	}
	if result.TopViolations == nil {
		result.TopViolations = []ViolationCount{}
	}
	if result.RulesetVersions == nil {
		result.RulesetVersions = []VersionCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
