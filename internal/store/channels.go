package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

// ChannelPolicy represents a row in the channel_policies table.
type ChannelPolicy struct {
	ChannelID         string
	Mode              string // "STRICT_GATE" or "REWRITE_ONLY"
	ForbiddenPhrases  []string
	ForbiddenPatterns []string
	RedirectMessage   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Spec converts the row into the form the rule table compiles.
func (p *ChannelPolicy) Spec() ruleset.ChannelSpec {
	return ruleset.ChannelSpec{
		ChannelID:         p.ChannelID,
		Mode:              p.Mode,
		ForbiddenPhrases:  p.ForbiddenPhrases,
		ForbiddenPatterns: p.ForbiddenPatterns,
		RedirectMessage:   p.RedirectMessage,
	}
}

// UpsertChannelPolicyParams holds the fields of a full channel policy write.
type UpsertChannelPolicyParams struct {
	Mode              string
	ForbiddenPhrases  []string
	ForbiddenPatterns []string
	RedirectMessage   string
}

const channelColumns = `channel_id, mode, forbidden_phrases, forbidden_patterns, redirect_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannelPolicy(row rowScanner) (*ChannelPolicy, error) {
	var p ChannelPolicy
	var phrases, patterns []byte
	if err := row.Scan(&p.ChannelID, &p.Mode, &phrases, &patterns,
		&p.RedirectMessage, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(phrases, &p.ForbiddenPhrases); err != nil {
		return nil, fmt.Errorf("forbidden_phrases: %w", err)
	}
	if err := json.Unmarshal(patterns, &p.ForbiddenPatterns); err != nil {
		return nil, fmt.Errorf("forbidden_patterns: %w", err)
	}
	return &p, nil
}

// ListChannelPolicies returns all stored channel policies ordered by channel_id.
func (s *Store) ListChannelPolicies(ctx context.Context) ([]*ChannelPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+channelColumns+` FROM channel_policies ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("ListChannelPolicies: %w", err)
	}
	defer rows.Close()

	var policies []*ChannelPolicy
	for rows.Next() {
		p, err := scanChannelPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("ListChannelPolicies: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// GetChannelPolicy returns the policy for a channel, or nil if not found.
func (s *Store) GetChannelPolicy(ctx context.Context, channelID string) (*ChannelPolicy, error) {
	p, err := scanChannelPolicy(s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channel_policies WHERE channel_id = $1`, channelID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelPolicy: %w", err)
	}
	return p, nil
}

// UpsertChannelPolicy creates or fully replaces a channel policy.
func (s *Store) UpsertChannelPolicy(ctx context.Context, channelID string, params UpsertChannelPolicyParams) (*ChannelPolicy, error) {
	phrases, err := jsonList(params.ForbiddenPhrases)
	if err != nil {
		return nil, fmt.Errorf("UpsertChannelPolicy: %w", err)
	}
	patterns, err := jsonList(params.ForbiddenPatterns)
	if err != nil {
		return nil, fmt.Errorf("UpsertChannelPolicy: %w", err)
	}

	p, err := scanChannelPolicy(s.db.QueryRowContext(ctx, `
		INSERT INTO channel_policies (channel_id, mode, forbidden_phrases, forbidden_patterns, redirect_message)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel_id) DO UPDATE SET
			mode               = EXCLUDED.mode,
			forbidden_phrases  = EXCLUDED.forbidden_phrases,
			forbidden_patterns = EXCLUDED.forbidden_patterns,
			redirect_message   = EXCLUDED.redirect_message,
			updated_at         = now()
		RETURNING `+channelColumns,
		channelID, params.Mode, phrases, patterns, params.RedirectMessage,
	))
	if err != nil {
		return nil, fmt.Errorf("UpsertChannelPolicy: %w", err)
	}
	return p, nil
}

// DeleteChannelPolicy deletes a channel policy. Returns sql.ErrNoRows when
// nothing was stored for the channel.
func (s *Store) DeleteChannelPolicy(ctx context.Context, channelID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM channel_policies WHERE channel_id = $1`, channelID)
	if err != nil {
		return fmt.Errorf("DeleteChannelPolicy: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// jsonList encodes a string list for a JSONB column. A nil list is stored
// as [] rather than null.
func jsonList(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	return json.Marshal(v)
}
