// Package dateutil normalises the loose date strings found in imports and
// forms into midnight-UTC timestamps.
package dateutil

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISOMillis is the JSON timestamp layout used across the API.
const ISOMillis = "2006-01-02T15:04:05.000Z"

var (
	isoDateRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	euDateRe  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

// ParseDate accepts YYYY-MM-DD, DD/MM/YYYY or an RFC 3339 timestamp and
// returns the calendar date at midnight UTC. Calendar-invalid dates such as
// 2025-13-01 or 31/02/2025 are rejected.
func ParseDate(s string) (time.Time, bool) {
	t, ok := parse(s)
	if !ok {
		return time.Time{}, false
	}
	return TruncateDay(t), true
}

// NormalizeISODate returns the ISO timestamp for s, or nil when s is blank or
// unparseable. Plain dates map to midnight UTC; timestamps keep their instant.
func NormalizeISODate(s string) *string {
	t, ok := parse(s)
	if !ok {
		return nil
	}
	out := t.UTC().Format(ISOMillis)
	return &out
}

func parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	var y, m, d int
	if g := isoDateRe.FindStringSubmatch(s); g != nil {
		y, m, d = atoi(g[1]), atoi(g[2]), atoi(g[3])
	} else if g := euDateRe.FindStringSubmatch(s); g != nil {
		d, m, y = atoi(g[1]), atoi(g[2]), atoi(g[3])
	} else if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	} else {
		return time.Time{}, false
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalises overflow, so a round trip detects invalid input.
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// TruncateDay drops the time of day, keeping the calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil is the ceiling of the day difference from now to target.
func DaysUntil(now, target time.Time) int {
	return int(math.Ceil(target.Sub(now).Hours() / 24))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
