package engine

import (
	"strings"
	"testing"
)

func TestInject(t *testing.T) {
	d := mustDefault(t).Disclaimer

	tests := []struct {
		name     string
		text     string
		force    bool
		injected bool
	}{
		{"trigger word", "Filing a lawsuit usually takes months.", false, true},
		{"multi-word trigger", "Legal action may follow a missed payment.", false, true},
		{"trigger is case-insensitive", "An ATTORNEY can review the lease.", false, true},
		{"no trigger", "The filing fee is $435.", false, false},
		{"word boundary", "Some parties pursue mediation; counselors can help.", false, false},
		{"forced", "The filing fee is $435.", true, true},
		{"already marked", d.Header + "\n\nSuing takes time.", false, false},
		{"already marked and forced", "Note: " + d.Marker + ".", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, injected := Inject(tt.text, tt.force, d)
			if injected != tt.injected {
				t.Fatalf("expected injected=%v, got %v", tt.injected, injected)
			}
			if !injected {
				if out != tt.text {
					t.Errorf("text changed without injection: %q", out)
				}
				return
			}
			if !strings.HasPrefix(out, d.Header) {
				t.Errorf("expected header prefix, got %q", out)
			}
			if !strings.HasSuffix(out, d.Footer) {
				t.Errorf("expected footer suffix, got %q", out)
			}
			if !strings.Contains(out, tt.text) {
				t.Errorf("original text missing from %q", out)
			}
		})
	}
}

func TestInject_Idempotent(t *testing.T) {
	d := mustDefault(t).Disclaimer

	for _, text := range []string{
		"Filing a lawsuit usually takes months.",
		"The filing fee is $435.",
		"Counsel for the landlord sent a notice.",
	} {
		for _, force := range []bool{false, true} {
			once, _ := Inject(text, force, d)
			twice, injected := Inject(once, force, d)
			if twice != once || injected {
				t.Errorf("Inject not idempotent for %q (force=%v)", text, force)
			}
		}
	}
}

func TestInject_MarkerIsUnique(t *testing.T) {
	d := mustDefault(t).Disclaimer
	out, _ := Inject("Suing takes time.", false, d)
	if n := strings.Count(out, d.Marker); n != 1 {
		t.Errorf("expected marker once, found %d times", n)
	}
}
