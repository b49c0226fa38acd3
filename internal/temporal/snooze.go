package temporal

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// SnoozeNextDay is the sentinel duration meaning "the next day at the
	// default reminder time".
	SnoozeNextDay = -1

	// DefaultSnoozeMinutes is used when a snooze request carries no number.
	DefaultSnoozeMinutes = 15
)

var snoozeDurationRe = regexp.MustCompile(`(\d+)\s*(minutes?|mins?|hours?|hrs?|h)?\b`)

// ParseSnoozeMinutes extracts a snooze duration in minutes from text.
// "tomorrow" anywhere yields SnoozeNextDay; a number without a unit is
// minutes; text without digits yields DefaultSnoozeMinutes.
func ParseSnoozeMinutes(text string) int {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "tomorrow") {
		return SnoozeNextDay
	}

	m := snoozeDurationRe.FindStringSubmatch(lower)
	if m == nil {
		return DefaultSnoozeMinutes
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return DefaultSnoozeMinutes
	}
	if strings.HasPrefix(m[2], "h") {
		return n * 60
	}
	return n
}

// HasSnoozeDuration reports whether text names an explicit snooze length or
// the next-day sentinel, as opposed to a bare "snooze".
func HasSnoozeDuration(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "tomorrow") || snoozeDurationRe.MatchString(lower)
}
