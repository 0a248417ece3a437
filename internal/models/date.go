package models

import "time"

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar day in UTC.
// Calendar columns carry no zone, so every comparison goes through this.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a calendar day
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}
