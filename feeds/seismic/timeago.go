package seismic

import (
	"fmt"
	"strings"
	"time"
)

// TimeAgo renders the distance between past and now the way the tile shows it,
// e.g. "3 hours and 12 minutes ago" or "2 days 1 hour ago".
func TimeAgo(past, now time.Time) string {
	minutes := int(now.Sub(past) / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case minutes < 1:
		return "just now"
	case minutes < 60:
		return plural(minutes, "minute") + " ago"
	case hours < 24:
		if m := minutes % 60; m > 0 {
			return plural(hours, "hour") + " and " + plural(m, "minute") + " ago"
		}
		return plural(hours, "hour") + " ago"
	}

	var b strings.Builder
	b.WriteString(plural(days, "day"))
	if h := hours % 24; h > 0 {
		b.WriteString(" " + plural(h, "hour"))
	}
	if m := minutes % 60; m > 0 {
		b.WriteString(" and " + plural(m, "minute"))
	}
	b.WriteString(" ago")
	return b.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
