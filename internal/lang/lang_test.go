package lang

import "testing"

func TestValidatePair(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		target  string
		wantErr bool
	}{
		{name: "valid pair", source: "en", target: "tr"},
		{name: "same language", source: "de", target: "de", wantErr: true},
		{name: "unknown source", source: "xx", target: "tr", wantErr: true},
		{name: "unknown target", source: "en", target: "ja", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePair(tt.source, tt.target)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePair(%q, %q) error = %v, wantErr %v", tt.source, tt.target, err, tt.wantErr)
			}
		})
	}
}

func TestPlanName(t *testing.T) {
	if got := PlanName("en", "tr"); got != "Turkish from English" {
		t.Errorf("PlanName(en, tr) = %q", got)
	}
	if got := PlanName("en", "xx"); got != "EN → XX" {
		t.Errorf("PlanName(en, xx) = %q", got)
	}
}

func TestTargets(t *testing.T) {
	targets := Targets("en")
	if len(targets) != len(Supported)-1 {
		t.Fatalf("Targets(en) returned %d languages, want %d", len(targets), len(Supported)-1)
	}
	for _, l := range targets {
		if l.Code == "en" {
			t.Error("Targets(en) must not include en")
		}
	}
}
