package clock

import (
	"regexp"
	"strings"
	"time"
)

var (
	fractionRe = regexp.MustCompile(`\.(\d{3})\d+`)
	zoneRe     = regexp.MustCompile(`(?i)(z|[+-]\d{2}:?\d{2})$`)
)

// Layouts tried in order once the value has been normalized.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999Z0700",
	"2006-01-02 15:04:05.999Z07:00",
	"2006-01-02 15:04:05.999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02Z07:00",
}

// ParseTimestamp parses a timestamp as reported by the authority.
//
// Values without a zone designator are taken as UTC and fractional seconds are
// truncated to millisecond precision before parsing. The boolean is false when no
// layout matches; callers treat such values as absent.
func ParseTimestamp(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "null") {
		return time.Time{}, false
	}

	s = fractionRe.ReplaceAllString(s, ".$1")
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	if !hasZone(s) {
		s += "Z"
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseTimestampPtr is ParseTimestamp returning nil for absent values.
func ParseTimestampPtr(raw string) *time.Time {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return nil
	}
	return &t
}

// hasZone reports whether s ends in a zone designator. A bare date such as
// 2024-01-01 ends in "-01" which must not count as an offset.
func hasZone(s string) bool {
	if len(s) <= len("2006-01-02") {
		return false
	}
	return zoneRe.MatchString(s[len("2006-01-02"):])
}

// FormatTimestamp renders t as RFC 3339 in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
