package handlers

import (
	"fmt"
	"time"
)

// FormatDuration renders a moving time in seconds as "2h 05m" or "45m 10s"
// for the activity table.
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return "0m"
	}
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %02dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatKilometers renders meters as kilometers with one decimal.
func FormatKilometers(meters float64) string {
	return fmt.Sprintf("%.1f km", meters/1000)
}
