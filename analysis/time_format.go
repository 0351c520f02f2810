package analysis

import "time"

// FormatTimeRange renders the span covered by msgs as a human-readable
// range. Messages without timestamps are ignored; an all-unstamped set
// yields "".
func FormatTimeRange(msgs []Message) string {
	var first, last time.Time
	for _, m := range msgs {
		if m.CreateTime.IsZero() {
			continue
		}
		if first.IsZero() || m.CreateTime.Before(first) {
			first = m.CreateTime
		}
		if last.IsZero() || m.CreateTime.After(last) {
			last = m.CreateTime
		}
	}
	if first.IsZero() {
		return ""
	}
	if sameDay(first, last) {
		return first.Format("2006-01-02 15:04") + " - " + last.Format("15:04")
	}
	return first.Format("2006-01-02 15:04") + " - " + last.Format("2006-01-02 15:04")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
