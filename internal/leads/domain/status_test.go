package domain

import "testing"

func TestParseStatusAliases(t *testing.T) {
	cases := []struct {
		raw  string
		want Status
		ok   bool
	}{
		{"", StatusNew, true},
		{"New Lead", StatusNew, true},
		{"  call #1 needed ", StatusCall1Needed, true},
		{"CALL 2 DONE", StatusCall2Done, true},
		{"First  Class   Pending Confirmation", StatusFirstClassScheduled, true},
		{"Did Not Attend First Class", StatusDidNotAttend, true},
		{"no show", StatusDidNotAttend, true},
		{"Completed", StatusSold, true},
		{"lost", StatusLost, true},
		{"On Hold", Status("On Hold"), false},
	}
	for _, c := range cases {
		got, ok := ParseStatus(c.raw)
		if got != c.want || ok != c.ok {
			t.Fatalf("ParseStatus(%q) = (%q, %v), want (%q, %v)", c.raw, got, ok, c.want, c.ok)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !StatusSold.IsTerminal() || !StatusLost.IsTerminal() {
		t.Fatal("Sold and Lost must be terminal")
	}
	if StatusFirstClassConfirmed.IsTerminal() {
		t.Fatal("First Class Confirmed is not terminal")
	}
}

func TestIsRegression(t *testing.T) {
	if !IsRegression(StatusCall2Done, StatusCall1Needed) {
		t.Fatal("moving back to an earlier call stage is a regression")
	}
	if IsRegression(StatusCall1Done, StatusCall2Needed) {
		t.Fatal("forward movement is not a regression")
	}
	if IsRegression(StatusSold, StatusLost) {
		t.Fatal("switching between terminal outcomes is not a regression")
	}
	if IsRegression(StatusFirstClassConfirmed, StatusDidNotAttend) {
		t.Fatal("confirmed and did-not-attend are alternatives, not a sequence")
	}
	if !IsRegression(StatusDidNotAttend, StatusCall3Done) {
		t.Fatal("moving from did-not-attend back to a call stage is a regression")
	}
	if IsRegression(Status("On Hold"), StatusNew) {
		t.Fatal("unknown statuses never count as regressions")
	}
}
