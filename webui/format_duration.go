package webui

import (
	"fmt"
	"time"
)

// FormatDuration renders d with its two most significant units, e.g.
// "3d 4h", "12m 5s" or "9s". Used for the uptime shown on the dashboard.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "-" + FormatDuration(-d)
	}
	if d < time.Second {
		return "0s"
	}

	units := []struct {
		size   time.Duration
		suffix string
	}{
		{7 * 24 * time.Hour, "w"},
		{24 * time.Hour, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}
	for i, u := range units[:len(units)-1] {
		if d < u.size {
			continue
		}
		next := units[i+1]
		return fmt.Sprintf("%d%s %d%s", d/u.size, u.suffix, (d%u.size)/next.size, next.suffix)
	}
	return fmt.Sprintf("%ds", d/time.Second)
}
