package domain

import "testing"

func TestCanTransition_Table(t *testing.T) {
	cases := []struct {
		from    FlowStatus
		to      FlowStatus
		allowed bool
	}{
		{FlowStatusPending, FlowStatusRunning, true},
		{FlowStatusPending, FlowStatusCancelled, true},
		{FlowStatusPending, FlowStatusCompleted, false},
		{FlowStatusPending, FlowStatusFailed, false},
		{FlowStatusRunning, FlowStatusCompleted, true},
		{FlowStatusRunning, FlowStatusFailed, true},
		{FlowStatusRunning, FlowStatusCancelled, true},
		{FlowStatusRunning, FlowStatusPending, false},
		{FlowStatusCompleted, FlowStatusRunning, false},
		{FlowStatusCompleted, FlowStatusCancelled, false},
		{FlowStatusFailed, FlowStatusRunning, false},
		{FlowStatusCancelled, FlowStatusRunning, false},
		{FlowStatusCancelled, FlowStatusCancelled, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestFlowStatus_IsTerminal(t *testing.T) {
	terminal := []FlowStatus{FlowStatusCompleted, FlowStatusFailed, FlowStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	nonTerminal := []FlowStatus{FlowStatusPending, FlowStatusRunning}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestFlowStatus_IsValid(t *testing.T) {
	if FlowStatus("done").IsValid() {
		t.Error("unknown status should not be valid")
	}
	if !FlowStatusRunning.IsValid() {
		t.Error("running should be valid")
	}
}
