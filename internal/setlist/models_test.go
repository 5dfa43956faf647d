package setlist

import "testing"

func TestStatus_Next(t *testing.T) {
	tests := []struct {
		in   Status
		want Status
	}{
		{StatusPending, StatusLearning},
		{StatusLearning, StatusReady},
		{StatusReady, StatusPending},
		{Status("garbage"), StatusPending},
		{Status(""), StatusPending},
	}
	for _, tt := range tests {
		if got := tt.in.Next(); got != tt.want {
			t.Errorf("Next(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatus_CycleLength(t *testing.T) {
	s := StatusPending
	for i := 0; i < 3; i++ {
		s = s.Next()
	}
	if s != StatusPending {
		t.Errorf("three steps from pending = %q, want pending", s)
	}
}

func TestStatus_ChipMetadata(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusLearning, StatusReady} {
		if !s.Valid() {
			t.Errorf("%q not valid", s)
		}
		if s.Label() == "" || s.ChipClass() == "" {
			t.Errorf("%q missing chip metadata", s)
		}
	}
}
