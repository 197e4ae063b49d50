package api

import (
	"database/sql"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/uplguard/internal/ruleset"
	"github.com/triage-ai/uplguard/internal/store"
)

func (d *Dependencies) requireStore(w http.ResponseWriter) bool {
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return false
	}
	return true
}

func (d *Dependencies) handleListChannels(w http.ResponseWriter, r *http.Request) {
	if !d.requireStore(w) {
		return
	}

	policies, err := d.Store.ListChannelPolicies(r.Context())
	if err != nil {
		d.Logger.Error("failed to list channel policies", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list channel policies"})
		return
	}

	resp := ChannelListResp{
		Channels:      make([]ChannelPolicyResp, 0, len(policies)),
		TableChannels: d.Registry.Current().ChannelIDs(),
	}
	for _, p := range policies {
		resp.Channels = append(resp.Channels, channelToResp(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	if !d.requireStore(w) {
		return
	}

	policy, err := d.Store.GetChannelPolicy(r.Context(), r.PathValue("channel_id"))
	if err != nil {
		d.Logger.Error("failed to get channel policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get channel policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Channel policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, channelToResp(policy))
}

// handlePutChannel compiles the policy before storing it, so a stored row
// always compiled at write time.
func (d *Dependencies) handlePutChannel(w http.ResponseWriter, r *http.Request) {
	if !d.requireStore(w) {
		return
	}
	channelID := r.PathValue("channel_id")

	var req ChannelPolicyReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	if _, err := ruleset.CompileChannel(ruleset.ChannelSpec{
		ChannelID:         channelID,
		Mode:              req.Mode,
		ForbiddenPhrases:  req.ForbiddenPhrases,
		ForbiddenPatterns: req.ForbiddenPatterns,
		RedirectMessage:   req.RedirectMessage,
	}); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: err.Error()})
		return
	}

	policy, err := d.Store.UpsertChannelPolicy(r.Context(), channelID, store.UpsertChannelPolicyParams{
		Mode:              req.Mode,
		ForbiddenPhrases:  req.ForbiddenPhrases,
		ForbiddenPatterns: req.ForbiddenPatterns,
		RedirectMessage:   req.RedirectMessage,
	})
	if err != nil {
		d.Logger.Error("failed to upsert channel policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to save channel policy"})
		return
	}

	d.Channels.Invalidate(channelID)
	d.Logger.Info("channel policy saved",
		zap.String("channel_id", channelID),
		zap.String("mode", req.Mode),
	)
	writeJSON(w, http.StatusOK, channelToResp(policy))
}

func (d *Dependencies) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	if !d.requireStore(w) {
		return
	}
	channelID := r.PathValue("channel_id")

	err := d.Store.DeleteChannelPolicy(r.Context(), channelID)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Channel policy not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete channel policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete channel policy"})
		return
	}

	d.Channels.Invalidate(channelID)
	w.WriteHeader(http.StatusNoContent)
}

func channelToResp(p *store.ChannelPolicy) ChannelPolicyResp {
	phrases, patterns := p.ForbiddenPhrases, p.ForbiddenPatterns
	if phrases == nil {
		phrases = []string{}
	}
	if patterns == nil {
		patterns = []string{}
	}
	return ChannelPolicyResp{
		ChannelID:         p.ChannelID,
		Mode:              p.Mode,
		ForbiddenPhrases:  phrases,
		ForbiddenPatterns: patterns,
		RedirectMessage:   p.RedirectMessage,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
