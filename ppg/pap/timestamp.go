package pap

import "time"

// timestampLayout is the PAP `YYYY-MM-DDThh:mm:ssZ` subset.
const timestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t in the PAP timestamp subset, always in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp parses the PAP timestamp subset produced by
// FormatTimestamp. Lexicographic comparison of two such strings agrees
// with chronological order, which is what the delivery-window deadline
// check relies on.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}
