package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/triage-ai/uplguard/internal/engine"
	"github.com/triage-ai/uplguard/internal/storage"
)

// handleProcess implements POST /v1/compliance/process. Any text, including
// empty or malformed output, yields a 200 with a client-safe result; only an
// unreadable body is rejected.
func (d *Dependencies) handleProcess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ProcessRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	outputType := engine.ParseOutputType(req.OutputType)

	// One snapshot for both the channel policy and the pipeline.
	tbl := d.Pipeline.Table()
	policy := d.Channels.Resolve(r.Context(), req.ChannelID, tbl)
	res := d.Pipeline.ProcessWith(tbl, req.Text, policy, outputType)

	requestID := uuid.New().String()
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	// Fire-and-forget: the writer never blocks.
	d.Writer.Write(buildEvent(req, policy.ID, outputType, requestID, res, float32(latencyMs)))

	violations := res.Violations
	if violations == nil {
		violations = []engine.ViolationMatch{}
	}
	var reason *string
	if res.Reason != "" {
		reason = &res.Reason
	}

	writeJSON(w, http.StatusOK, ProcessResponse{
		Text:               res.TransformedText,
		RiskLevel:          res.RiskLevel.String(),
		Modified:           res.Modified,
		DisclaimerInjected: res.DisclaimerInjected,
		MinimizeAllowed:    res.MinimizeAllowed,
		Outcome:            res.Outcome.String(),
		Gated:              res.Gated,
		Reason:             reason,
		Violations:         violations,
		RulesetVersion:     res.RulesetVersion,
		RequestID:          requestID,
		LatencyMs:          float64(time.Since(start)) / float64(time.Millisecond),
	})
}

// buildEvent derives the audit record. The candidate text is only hashed.
func buildEvent(
	req ProcessRequest,
	channelID string,
	outputType engine.OutputType,
	requestID string,
	res *engine.ComplianceResult,
	latencyMs float32,
) *storage.ComplianceEvent {
	ids := make([]string, len(res.Violations))
	severities := make([]string, len(res.Violations))
	for i, v := range res.Violations {
		ids[i] = v.PatternID
		severities[i] = v.Severity.String()
	}

	return &storage.ComplianceEvent{
		RequestID:           requestID,
		ChannelID:           channelID,
		OutputType:          string(outputType),
		Timestamp:           time.Now(),
		TextHash:            storage.HashText(req.Text),
		TextSize:            uint32(len(req.Text)),
		Outcome:             res.Outcome.String(),
		RiskLevel:           res.RiskLevel.String(),
		Modified:            res.Modified,
		DisclaimerInjected:  res.DisclaimerInjected,
		Gated:               res.Gated,
		MinimizeAllowed:     res.MinimizeAllowed,
		ViolationIDs:        ids,
		ViolationSeverities: severities,
		RulesetVersion:      res.RulesetVersion,
		ClientTraceID:       req.TraceID,
		Metadata:            req.Metadata,
		LatencyMs:           latencyMs,
	}
}
