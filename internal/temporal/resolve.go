// Package temporal resolves natural-language date and time phrases into
// absolute, zoned timestamps.
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Resolution is the outcome of resolving a phrase against a reference time.
type Resolution struct {
	// At is the resolved moment in the reference time's location. When
	// HourCertain is false only its date is meaningful.
	At time.Time

	// Found is true when any date or time expression was recognised.
	Found bool

	// HourCertain is true when the phrase named a clock time, a relative
	// offset, or a part of the day.
	HourCertain bool

	// ExplicitDay is true when the phrase pinned the day with "today",
	// "tonight", "tomorrow" or "in N days".
	ExplicitDay bool

	// Weekday is true when the day came from a weekday name.
	Weekday bool

	// Defaulted is true when the clock time was injected by a DefaultTime
	// policy rather than taken from the phrase.
	Defaulted bool

	// Phrase is the lowercased calendar expression matched by the fallback
	// parser ("in 2 weeks", "jan 20"), empty when a built-in rule matched.
	Phrase string
}

var (
	relativeRe = regexp.MustCompile(`\bin\s+(\d+)\s*(minutes?|mins?|hours?|hrs?|h|days?)\b`)
	meridiemRe = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\b\.?`)
	clock24Re  = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	bareHourRe = regexp.MustCompile(`(?:\bat|@)\s*(\d{1,2})\b`)
	tomorrowRe = regexp.MustCompile(`\btomorrow\b`)
	todayRe    = regexp.MustCompile(`\b(?:today|tonight)\b`)
	weekdayRe  = regexp.MustCompile(`\b(?:(on|next|this)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	daypartRe  = regexp.MustCompile(`\b(morning|noon|afternoon|evening|tonight|night)\b`)

	// anchoredDaypartRe only accepts a part of the day that is used as a
	// time: "tonight", or a daypart after a day word, "this", "in the", "at"
	// or a clock time. "night cream" and "evening dress" do not match.
	anchoredDaypartRe = regexp.MustCompile(`(?:\b(?:today|tomorrow|this|at|in\s+the|(?:mon|tues|wednes|thurs|fri|satur|sun)day)|\d(?:\s*[ap]\.?m\.?)?)\s+(morning|noon|afternoon|evening|night)\b|\b(tonight)\b`)
)

// dayparts maps a part of the day to the hour it stands for.
var dayparts = map[string]int{
	"morning":   9,
	"noon":      12,
	"afternoon": 15,
	"evening":   18,
	"tonight":   20,
	"night":     20,
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Resolver turns free text into a Resolution. Day words, weekdays, relative
// offsets and clock times are handled by explicit rules; any other calendar
// expression ("jan 20", "in 2 weeks") falls through to the when parser, which
// only ever contributes the date.
type Resolver struct {
	parser *when.Parser
}

// NewResolver returns a Resolver with English and language-neutral rules.
func NewResolver() *Resolver {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Resolver{parser: w}
}

// Resolve interprets text relative to ref, which must already be in the
// user's location. It prefers future readings: a clock time that already
// passed today moves to tomorrow unless the text said "today" or "tomorrow".
func (r *Resolver) Resolve(text string, ref time.Time) Resolution {
	lower := strings.ToLower(text)

	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch unit := m[2]; {
		case strings.HasPrefix(unit, "min"):
			return Resolution{At: ref.Add(time.Duration(n) * time.Minute), Found: true, HourCertain: true}
		case strings.HasPrefix(unit, "h"):
			return Resolution{At: ref.Add(time.Duration(n) * time.Hour), Found: true, HourCertain: true}
		}
	}

	day := r.resolveDay(lower, ref)

	var res Resolution
	daypart, hasDaypart := findDaypart(lower)
	if c, ok := findClock(lower); ok {
		hour := c.hour
		if c.ambiguous {
			switch {
			case hasDaypart && daypart >= 12:
				hour += 12
			case !hasDaypart:
				hour = pmHeuristic(hour, c.minute, day.date, ref)
			}
		}
		res = Resolution{At: atClock(day.date, hour, c.minute), Found: true, HourCertain: true}
	} else if hasDaypart {
		res = Resolution{At: atClock(day.date, daypart, 0), Found: true, HourCertain: true}
	} else if day.found {
		res = Resolution{At: atClock(day.date, ref.Hour(), ref.Minute())}
		res.Found = true
	} else {
		return Resolution{}
	}

	res.ExplicitDay = day.explicit
	res.Weekday = day.weekday
	res.Phrase = day.phrase
	if res.HourCertain {
		res.At = rollForward(res, ref)
	}
	return res
}

type dayResult struct {
	date     time.Time
	found    bool
	explicit bool
	weekday  bool
	phrase   string
}

func (r *Resolver) resolveDay(lower string, ref time.Time) dayResult {
	if m := relativeRe.FindStringSubmatch(lower); m != nil && strings.HasPrefix(m[2], "day") {
		n, _ := strconv.Atoi(m[1])
		return dayResult{date: ref.AddDate(0, 0, n), found: true, explicit: true}
	}
	if tomorrowRe.MatchString(lower) {
		return dayResult{date: ref.AddDate(0, 0, 1), found: true, explicit: true}
	}
	if todayRe.MatchString(lower) {
		return dayResult{date: ref, found: true, explicit: true}
	}
	if m := weekdayRe.FindStringSubmatch(lower); m != nil {
		target := weekdays[m[2]]
		ahead := (int(target) - int(ref.Weekday()) + 7) % 7
		if ahead == 0 && m[1] == "next" {
			ahead = 7
		}
		return dayResult{date: ref.AddDate(0, 0, ahead), found: true, weekday: true}
	}

	parsed, err := r.parser.Parse(withoutClock(lower), ref)
	if err != nil || parsed == nil {
		return dayResult{date: ref}
	}
	return dayResult{
		date:   parsed.Time.In(ref.Location()),
		found:  true,
		phrase: strings.Trim(parsed.Text, " \t,.;"),
	}
}

// withoutClock blanks out clock times and every daypart word, anchored or
// not, so the calendar parser sees only date words.
func withoutClock(lower string) string {
	for _, re := range []*regexp.Regexp{meridiemRe, clock24Re, bareHourRe, daypartRe} {
		lower = re.ReplaceAllString(lower, " ")
	}
	return lower
}

type clock struct {
	hour      int
	minute    int
	ambiguous bool
}

// findClock extracts an explicit clock time. A bare hour from 1 to 11 with
// no am/pm marker is reported as ambiguous.
func findClock(lower string) (clock, bool) {
	if m := meridiemRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || minute > 59 {
			return clock{}, false
		}
		h %= 12
		if m[3] == "p" {
			h += 12
		}
		return clock{hour: h, minute: minute}, true
	}

	if m := clock24Re.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if h > 23 || minute > 59 {
			return clock{}, false
		}
		return clock{hour: h, minute: minute, ambiguous: h >= 1 && h <= 11}, true
	}

	if m := bareHourRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h > 23 {
			return clock{}, false
		}
		return clock{hour: h, ambiguous: h >= 1 && h <= 11}, true
	}

	return clock{}, false
}

func findDaypart(lower string) (int, bool) {
	m := anchoredDaypartRe.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}
	if m[1] != "" {
		return dayparts[m[1]], true
	}
	return dayparts[m[2]], true
}

// pmHeuristic reads an ambiguous morning hour as its afternoon twin when it
// is already afternoon, the literal hour has passed today, and the PM
// reading is still ahead.
func pmHeuristic(hour, minute int, date, ref time.Time) int {
	if !sameDay(date, ref) || ref.Hour() < 12 {
		return hour
	}
	if !atClock(date, hour, minute).Before(ref) {
		return hour
	}
	if atClock(date, hour+12, minute).Before(ref) {
		return hour
	}
	return hour + 12
}

// rollForward moves a past moment into the future: weekday phrases move a
// week, phrases without an explicit day move one day, and explicit days stay
// put.
func rollForward(res Resolution, ref time.Time) time.Time {
	if !res.At.Before(ref) {
		return res.At
	}
	switch {
	case res.Weekday:
		return res.At.AddDate(0, 0, 7)
	case res.ExplicitDay:
		return res.At
	default:
		return res.At.AddDate(0, 0, 1)
	}
}

func atClock(date time.Time, hour, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
