package utils

import "time"

const (
	DateFormat      = "2006-01-02"
	TradeTimeFormat = "2006-01-02 15:04:05"
)

// ParseTradeTime parses a trade timestamp in the market timezone.
func ParseTradeTime(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(TradeTimeFormat, s, loc)
}

// ParseDate parses a bare date ("2006-01-02") in the market timezone.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateFormat, s, loc)
}

// DateOf truncates t to midnight of its calendar date in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
