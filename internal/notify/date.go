package notify

import (
	"fmt"
	"time"
)

// dateLayout formats timestamps a week or more old, e.g. "May 1, 10:00 AM".
const dateLayout = "Jan 2, 03:04 PM"

// FormatRelativeDate labels ts relative to now: "Today" within 24 hours,
// "Yesterday" for 24 to 48 hours, "N days ago" up to a week, and a short
// date beyond that. Timestamps after now are shown as a date.
func FormatRelativeDate(ts, now time.Time) string {
	diff := now.Sub(ts)
	if diff < 0 {
		return ts.Format(dateLayout)
	}

	days := int(diff / (24 * time.Hour))
	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return ts.Format(dateLayout)
	}
}
