// Package market knows the NSE/BSE cash session in Indian Standard Time.
package market

import "time"

// IST is fixed at UTC+05:30; India has no daylight saving.
var IST = time.FixedZone("IST", 19800)

// Hours is the regular session in display form.
const Hours = "9:15 AM - 3:30 PM IST"

// Now returns the current time in IST.
func Now() time.Time { return time.Now().In(IST) }

// IsOpen reports whether t falls inside the regular weekday session,
// 09:15 to 15:30 inclusive.
func IsOpen(t time.Time) bool {
	t = t.In(IST)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	open := time.Date(t.Year(), t.Month(), t.Day(), 9, 15, 0, 0, IST)
	closeAt := time.Date(t.Year(), t.Month(), t.Day(), 15, 30, 0, 0, IST)
	return !t.Before(open) && !t.After(closeAt)
}

// Day returns the IST calendar date of t as YYYY-MM-DD.
func Day(t time.Time) string { return t.In(IST).Format("2006-01-02") }

// MidnightIST returns the start of t's IST day.
func MidnightIST(t time.Time) time.Time {
	t = t.In(IST)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, IST)
}
