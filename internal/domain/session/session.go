// Package session classifies timestamps against the regular US equity
// trading session.
package session

import "time"

// Regular session window in exchange-local (US Eastern) wall-clock minutes.
// The window is fixed and not configurable: [09:30, 15:59] inclusive on
// both ends.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 15
	CloseMinute = 59
)

// eastern follows US DST, unlike a fixed UTC offset.
var eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// tzdata missing on the host; EST is the closest static fallback.
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// InRegularSession reports whether t falls inside the regular trading
// session, compared on Eastern wall-clock time-of-day.
func InRegularSession(t time.Time) bool {
	local := t.In(eastern)
	hm := local.Hour()*60 + local.Minute()
	return inWindow(hm, OpenHour*60+OpenMinute, CloseHour*60+CloseMinute)
}

// inWindow handles a wraparound window (close < open) for generality, but
// the session above is a plain same-day range and never takes that branch.
func inWindow(hm, open, close int) bool {
	if close < open {
		return hm >= open || hm <= close
	}
	return hm >= open && hm <= close
}
