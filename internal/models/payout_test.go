package models

import "testing"

func TestIsValidPayoutTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{PayoutStatusPending, PayoutStatusPaid, true},
		{PayoutStatusPending, PayoutStatusFailed, true},

		// Reconciliation reset
		{PayoutStatusPaid, PayoutStatusFailed, true},

		// Invalid transitions
		{PayoutStatusFailed, PayoutStatusPaid, false},
		{PayoutStatusFailed, PayoutStatusPending, false},
		{PayoutStatusPaid, PayoutStatusPending, false},
		{PayoutStatusPaid, PayoutStatusPaid, false},
		{PayoutStatusPending, PayoutStatusPending, false},
		{"nonexistent", PayoutStatusPaid, false},
		{PayoutStatusPending, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidPayoutTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidPayoutTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllPayoutStatusesHaveTransitionEntry(t *testing.T) {
	for _, status := range []string{PayoutStatusPending, PayoutStatusPaid, PayoutStatusFailed} {
		if _, ok := ValidPayoutTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidPayoutTransitions map", status)
		}
	}
}

func TestIsValidGameType(t *testing.T) {
	valid := []string{GameTypeTrivia, GameTypeStacker, GameTypeAchievement, GameTypeReferral, GameTypeWithdrawal}
	for _, g := range valid {
		if !IsValidGameType(g) {
			t.Errorf("expected %q to be a valid game type", g)
		}
	}
	for _, g := range []string{"", "poker", "TRIVIA"} {
		if IsValidGameType(g) {
			t.Errorf("expected %q to be invalid", g)
		}
	}
}
