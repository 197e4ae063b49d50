package api

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/uplguard/internal/engine"
	"github.com/triage-ai/uplguard/internal/ruleset"
)

func (d *Dependencies) handleGetRuleset(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rulesetToResp(d.Registry.Current()))
}

func (d *Dependencies) handleReloadRuleset(w http.ResponseWriter, _ *http.Request) {
	prev, err := d.ReloadRuleset()
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ReloadResp{
		Previous: prev.Version,
		Active:   rulesetToResp(d.Registry.Current()),
	})
}

// ReloadRuleset loads, compiles and self-checks the table at RulesetPath and
// activates it. A failing table is rejected and the active one kept. Returns
// the table that was replaced.
func (d *Dependencies) ReloadRuleset() (*ruleset.Table, error) {
	tbl, err := engine.LoadTable(d.RulesetPath)
	if err != nil {
		d.Logger.Error("rule table rejected, keeping active table",
			zap.String("path", d.RulesetPath),
			zap.String("active_version", d.Registry.Current().Version),
			zap.Error(err),
		)
		return nil, fmt.Errorf("rule table rejected: %w", err)
	}

	prev := d.Registry.Swap(tbl)
	d.Logger.Info("rule table activated",
		zap.String("previous_version", prev.Version),
		zap.String("version", tbl.Version),
		zap.String("digest", tbl.Digest),
	)
	return prev, nil
}

func rulesetToResp(t *ruleset.Table) RulesetResp {
	return RulesetResp{
		Name:              t.Name,
		Version:           t.Version,
		Digest:            t.Digest,
		Rules:             len(t.Rules),
		Violations:        len(t.Violations),
		Channels:          t.ChannelIDs(),
		FallbackMessage:   t.FallbackMessage,
		MinimizeBlockedAt: t.MinimizeBlockedAt.String(),
	}
}
