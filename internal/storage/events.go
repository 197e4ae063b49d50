package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventWriter is the interface for writing compliance events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ComplianceEvent)
	Close()
}

// ComplianceEvent is the audit record of one pipeline call. It carries
// counters and a hash of the candidate text, never the text itself.
type ComplianceEvent struct {
	RequestID           string
	ChannelID           string
	OutputType          string
	Timestamp           time.Time
	TextHash            string // SHA256 of the candidate text
	TextSize            uint32
	Outcome             string // unchanged, neutralized, redirected, fallback
	RiskLevel           string
	Modified            bool
	DisclaimerInjected  bool
	Gated               bool
	MinimizeAllowed     bool
	ViolationIDs        []string
	ViolationSeverities []string
	RulesetVersion      string
	ClientTraceID       string
	Metadata            map[string]string
	LatencyMs           float32
}

// HashText returns the hex SHA256 of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
