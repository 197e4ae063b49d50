package engine

import (
	"errors"
	"fmt"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

// ErrSelfCheck is returned when a table's own examples, canned messages or
// channel samples do not behave as the table claims.
var ErrSelfCheck = errors.New("rule table self-check failed")

// SelfCheck runs tbl against its own material:
//   - every rule example neutralizes to scanner-clean text, and a second
//     pass leaves it unchanged
//   - the fallback message, disclaimer header and footer, and every redirect
//     message are left unchanged by the rules and match no violation
//   - every channel sample is gated by its channel
//
// A table that fails is never activated.
func SelfCheck(tbl *ruleset.Table) error {
	for _, r := range tbl.Rules {
		for _, ex := range r.Examples {
			once, _ := Neutralize(ex, tbl)
			if twice, _ := Neutralize(once, tbl); twice != once {
				return fmt.Errorf("%w: rule %q example %q is not idempotent: %q then %q",
					ErrSelfCheck, r.ID, ex, once, twice)
			}
			if v := Scan(once, tbl); len(v) > 0 {
				return fmt.Errorf("%w: rule %q example %q leaves violation %q in %q",
					ErrSelfCheck, r.ID, ex, v[0].PatternID, once)
			}
		}
	}

	canned := map[string]string{
		"fallback message":  tbl.FallbackMessage,
		"disclaimer header": tbl.Disclaimer.Header,
		"disclaimer footer": tbl.Disclaimer.Footer,
	}
	for _, id := range tbl.ChannelIDs() {
		p, _ := tbl.LookupChannel(id)
		if p.RedirectMessage != "" {
			canned["redirect message of channel "+id] = p.RedirectMessage
		}
		for _, sample := range p.Samples {
			if p.Strict() && !IsForbidden(sample, p) {
				return fmt.Errorf("%w: channel %q does not gate its sample %q", ErrSelfCheck, id, sample)
			}
		}
	}
	for name, text := range canned {
		if out, changed := Neutralize(text, tbl); changed {
			return fmt.Errorf("%w: %s is rewritten to %q", ErrSelfCheck, name, out)
		}
		if v := Scan(text, tbl); len(v) > 0 {
			return fmt.Errorf("%w: %s matches violation %q", ErrSelfCheck, name, v[0].PatternID)
		}
	}
	return nil
}

// LoadTable parses the table at path, or the embedded table when path is
// empty, and self-checks it.
func LoadTable(path string) (*ruleset.Table, error) {
	var (
		tbl *ruleset.Table
		err error
	)
	if path == "" {
		tbl, err = ruleset.Default()
	} else {
		tbl, err = ruleset.LoadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("LoadTable: %w", err)
	}
	if err := SelfCheck(tbl); err != nil {
		return nil, fmt.Errorf("LoadTable: %w", err)
	}
	return tbl, nil
}
