package webhooks

import (
	"testing"
	"time"
)

func TestTableRetryPolicy_WalksLadderAndHoldsLastRung(t *testing.T) {
	policy := DefaultRetryPolicy()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 5 * time.Second},
		{attempt: 3, want: 30 * time.Second},
		{attempt: 4, want: 2 * time.Minute},
		{attempt: 5, want: 10 * time.Minute},
		{attempt: 6, want: time.Hour},
		{attempt: 7, want: time.Hour},
		{attempt: 42, want: time.Hour},
	}
	for _, tc := range cases {
		if got := policy.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestTableRetryPolicy_EmptyLadderFallsBackToDefaults(t *testing.T) {
	policy := TableRetryPolicy{}
	if got := policy.NextDelay(2); got != 5*time.Second {
		t.Fatalf("expected default ladder fallback, got %s", got)
	}
}
