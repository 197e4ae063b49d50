package store

import (
	"errors"
	"testing"
	"time"

	"github.com/triage-ai/uplguard/internal/ruleset"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			*p = []byte(r.values[i].(string))
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

func TestScanChannelPolicy(t *testing.T) {
	now := time.Now()
	row := fakeRow{values: []any{
		"case-qa", "STRICT_GATE", `["likely outcome"]`, `["\\bwill (win|lose)\\b"]`,
		"I can help with deadlines.", now, now,
	}}

	p, err := scanChannelPolicy(row)
	if err != nil {
		t.Fatal(err)
	}
	if p.ChannelID != "case-qa" || p.Mode != "STRICT_GATE" {
		t.Errorf("unexpected row: %+v", p)
	}
	if len(p.ForbiddenPhrases) != 1 || p.ForbiddenPhrases[0] != "likely outcome" {
		t.Errorf("unexpected phrases: %v", p.ForbiddenPhrases)
	}
	if len(p.ForbiddenPatterns) != 1 || p.ForbiddenPatterns[0] != `\bwill (win|lose)\b` {
		t.Errorf("unexpected patterns: %v", p.ForbiddenPatterns)
	}

	compiled, err := ruleset.CompileChannel(p.Spec())
	if err != nil {
		t.Fatalf("stored policy should compile: %v", err)
	}
	if !compiled.Strict() || len(compiled.Probes) != 2 {
		t.Errorf("unexpected compiled policy: %+v", compiled)
	}
}

func TestScanChannelPolicy_Errors(t *testing.T) {
	scanErr := errors.New("boom")
	if _, err := scanChannelPolicy(fakeRow{err: scanErr}); !errors.Is(err, scanErr) {
		t.Errorf("expected scan error, got %v", err)
	}

	now := time.Now()
	bad := fakeRow{values: []any{"c", "REWRITE_ONLY", `{`, `[]`, "", now, now}}
	if _, err := scanChannelPolicy(bad); err == nil {
		t.Error("expected error for malformed JSONB")
	}
}

func TestJSONList(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, `[]`},
		{[]string{}, `[]`},
		{[]string{"a", "b"}, `["a","b"]`},
	}
	for _, tt := range tests {
		got, err := jsonList(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != tt.want {
			t.Errorf("jsonList(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
