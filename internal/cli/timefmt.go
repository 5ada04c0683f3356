package cli

import (
	"fmt"
	"time"
)

// RelativeTime formats t for the conversation list, counting whole
// minutes, hours and days back from now.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	days := int(d / (24 * time.Hour))
	switch {
	case days == 0:
		hours := int(d / time.Hour)
		if hours == 0 {
			mins := int(d / time.Minute)
			if mins < 1 {
				return "Just now"
			}
			return fmt.Sprintf("%dm ago", mins)
		}
		return fmt.Sprintf("%dh ago", hours)
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		return fmt.Sprintf("%d weeks ago", days/7)
	}
	return t.Local().Format("Jan 2, 2006")
}

// ClockTime is the time shown next to a message.
func ClockTime(t time.Time) string {
	return t.Local().Format("3:04 PM")
}
