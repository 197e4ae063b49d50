package harness

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ErrNotCertified is returned when a certificate is requested for a report
// below 100% compliance.
var ErrNotCertified = errors.New("report is not fully compliant")

// Certificate records a fully compliant harness run.
type Certificate struct {
	ID               uuid.UUID
	IssuedAt         time.Time
	RulesetName      string
	RulesetVersion   string
	RulesetDigest    string
	CorpusSize       int
	ViolationsBefore int
	ViolationsAfter  int
	ComplianceRate   float64
	GateProbes       int
	// ReportDigest is the blake2b-256 digest of the encoded report.
	ReportDigest string
	// Signature is a blake2b-256 MAC over the certificate fields, empty when
	// no signing key is configured.
	Signature string
}

// Issue builds a certificate for r, whose encoded form is reportJSON. key
// may be empty for an unsigned certificate; blake2b accepts keys of up to
// 64 bytes.
func Issue(r *Report, reportJSON []byte, key []byte) (*Certificate, error) {
	if !r.Certified() {
		return nil, fmt.Errorf("Issue: %w: %d/%d passed, %d/%d gate probes",
			ErrNotCertified, r.Summary.PassedTests, r.Summary.TotalTests,
			r.Summary.GateProbesPassed, r.Summary.GateProbesTotal)
	}
	sum := blake2b.Sum256(reportJSON)
	c := &Certificate{
		ID:               uuid.New(),
		IssuedAt:         time.Now().UTC().Truncate(time.Second),
		RulesetName:      r.Summary.RulesetName,
		RulesetVersion:   r.Summary.RulesetVersion,
		RulesetDigest:    r.Summary.RulesetDigest,
		CorpusSize:       r.Summary.TotalTests,
		ViolationsBefore: r.Summary.ViolationsBefore,
		ViolationsAfter:  r.Summary.ViolationsAfter,
		ComplianceRate:   r.Summary.ComplianceRate,
		GateProbes:       r.Summary.GateProbesTotal,
		ReportDigest:     "blake2b-256:" + hex.EncodeToString(sum[:]),
	}
	if len(key) > 0 {
		mac, err := c.mac(key)
		if err != nil {
			return nil, fmt.Errorf("Issue: %w", err)
		}
		c.Signature = mac
	}
	return c, nil
}

// Verify checks the certificate against the encoded report and key.
func (c *Certificate) Verify(reportJSON []byte, key []byte) bool {
	sum := blake2b.Sum256(reportJSON)
	if c.ReportDigest != "blake2b-256:"+hex.EncodeToString(sum[:]) {
		return false
	}
	if len(key) == 0 {
		return c.Signature == ""
	}
	mac, err := c.mac(key)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(mac), []byte(c.Signature)) == 1
}

func (c *Certificate) mac(key []byte) (string, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("signing key: %w", err)
	}
	h.Write([]byte(c.payload()))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Certificate) payload() string {
	return strings.Join([]string{
		c.ID.String(),
		c.IssuedAt.Format(time.RFC3339),
		c.RulesetName,
		c.RulesetVersion,
		c.RulesetDigest,
		fmt.Sprint(c.CorpusSize),
		fmt.Sprint(c.ViolationsBefore),
		fmt.Sprint(c.ViolationsAfter),
		strconv.FormatFloat(c.ComplianceRate, 'f', -1, 64),
		fmt.Sprint(c.GateProbes),
		c.ReportDigest,
	}, "\n")
}

// Render returns the human-readable certificate document.
func (c *Certificate) Render() string {
	sig := c.Signature
	if sig == "" {
		sig = "(unsigned)"
	}
	var b strings.Builder
	b.WriteString("UPL COMPLIANCE CERTIFICATE\n")
	b.WriteString("==========================\n\n")
	fmt.Fprintf(&b, "Certificate ID:    %s\n", c.ID)
	fmt.Fprintf(&b, "Issued:            %s\n", c.IssuedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Rule table:        %s (version %s)\n", c.RulesetName, c.RulesetVersion)
	fmt.Fprintf(&b, "Rule table digest: %s\n\n", c.RulesetDigest)
	fmt.Fprintf(&b, "Corpus size:       %d\n", c.CorpusSize)
	fmt.Fprintf(&b, "Violations before: %d\n", c.ViolationsBefore)
	fmt.Fprintf(&b, "Violations after:  %d\n", c.ViolationsAfter)
	fmt.Fprintf(&b, "Compliance rate:   %.2f%%\n", c.ComplianceRate)
	fmt.Fprintf(&b, "Gate probes:       %d/%d redirected\n\n", c.GateProbes, c.GateProbes)
	fmt.Fprintf(&b, "Report digest:     %s\n", c.ReportDigest)
	fmt.Fprintf(&b, "Signature:         %s\n", sig)
	return b.String()
}
