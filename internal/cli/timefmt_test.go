package cli

import (
	"testing"
	"time"
)

func TestRelativeTime(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		ago  time.Duration
		want string
	}{
		{0, "Just now"},
		{30 * time.Second, "Just now"},
		{5 * time.Minute, "5m ago"},
		{59 * time.Minute, "59m ago"},
		{3 * time.Hour, "3h ago"},
		{23 * time.Hour, "23h ago"},
		{25 * time.Hour, "Yesterday"},
		{3 * 24 * time.Hour, "3 days ago"},
		{14 * 24 * time.Hour, "2 weeks ago"},
		{29 * 24 * time.Hour, "4 weeks ago"},
	}
	for _, tc := range cases {
		if got := RelativeTime(now.Add(-tc.ago), now); got != tc.want {
			t.Errorf("RelativeTime(-%v) = %q, want %q", tc.ago, got, tc.want)
		}
	}

	old := now.Add(-60 * 24 * time.Hour)
	if got, want := RelativeTime(old, now), old.Local().Format("Jan 2, 2006"); got != want {
		t.Errorf("RelativeTime(-60d) = %q, want %q", got, want)
	}
}
