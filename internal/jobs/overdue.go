package jobs

import (
	"fmt"
	"time"
)

// FormatOverdueBy renders how long ago dueAt was, in whole days when at least one
// day has passed and in whole hours otherwise.
func FormatOverdueBy(now, dueAt time.Time) string {
	late := now.Sub(dueAt)
	if days := int(late / (24 * time.Hour)); days > 0 {
		return plural(days, "day")
	}
	hours := int(late / time.Hour)
	if hours < 0 {
		hours = 0
	}
	return plural(hours, "hour")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
