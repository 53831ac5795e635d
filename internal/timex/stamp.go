package timex

import "time"

// StampLayout is the timestamp layout for database text columns. The
// fraction is padded to nine digits, so lexicographic order over
// stored values matches chronological order.
const StampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Stamp renders t in UTC using StampLayout.
func Stamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}

// ParseStamp reads a stored timestamp. It also accepts values with a
// shorter or absent fraction.
func ParseStamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
