package temporal

import "time"

// HumanTime renders t relative to ref for chat replies: "today 3:00 pm",
// "tomorrow 10:00 am", or "Mon, Jan 22 3:00 pm" for other days. Both times
// are shown in t's location.
func HumanTime(t, ref time.Time) string {
	ref = ref.In(t.Location())
	clock := t.Format("3:04 pm")
	switch {
	case sameDay(t, ref):
		return "today " + clock
	case sameDay(t, ref.AddDate(0, 0, 1)):
		return "tomorrow " + clock
	case t.Year() == ref.Year():
		return t.Format("Mon, Jan 2") + " " + clock
	default:
		return t.Format("Mon, Jan 2 2006") + " " + clock
	}
}
