package temporal

import "time"

// DefaultTime is the explicit policy for phrases that name a day but no
// clock time ("tomorrow", "on friday"). The resolver never applies it on its
// own; callers opt in.
type DefaultTime struct {
	Hour   int
	Minute int
}

// Apply sets the policy's clock time on a date-only resolution. Resolutions
// with a certain hour, or with nothing found, are returned unchanged.
func (d DefaultTime) Apply(res Resolution, ref time.Time) Resolution {
	if !res.Found || res.HourCertain {
		return res
	}
	res.At = atClock(res.At, d.Hour, d.Minute)
	res.Defaulted = true
	if res.Weekday && res.At.Before(ref) {
		res.At = res.At.AddDate(0, 0, 7)
	}
	return res
}

// NextDay returns the policy time on the calendar day after ref, in ref's
// location.
func (d DefaultTime) NextDay(ref time.Time) time.Time {
	return atClock(ref.AddDate(0, 0, 1), d.Hour, d.Minute)
}
