package engine

import (
	"fmt"
	"time"
)

// PeaceLayout is the timestamp layout of forced peace windows in the config.
const PeaceLayout = "02.01.06 15:04:05"

// PeaceWindow is a period during which no attack may land.
type PeaceWindow struct {
	Start time.Time
	End   time.Time
}

// ParsePeaceWindow parses a start/end pair in PeaceLayout, in loc.
func ParsePeaceWindow(start, end string, loc *time.Location) (PeaceWindow, error) {
	if loc == nil {
		loc = time.Local
	}
	s, err := time.ParseInLocation(PeaceLayout, start, loc)
	if err != nil {
		return PeaceWindow{}, fmt.Errorf("forced peace start %q: %w", start, err)
	}
	e, err := time.ParseInLocation(PeaceLayout, end, loc)
	if err != nil {
		return PeaceWindow{}, fmt.Errorf("forced peace end %q: %w", end, err)
	}
	if !e.After(s) {
		return PeaceWindow{}, fmt.Errorf("forced peace window %s ends before it starts", start)
	}
	return PeaceWindow{Start: s, End: e}, nil
}

// Contains reports whether t falls strictly inside the window.
func (w PeaceWindow) Contains(t time.Time) bool {
	return t.After(w.Start) && t.Before(w.End)
}

// ActivePeace returns the window now falls in, if any.
func ActivePeace(windows []PeaceWindow, now time.Time) (PeaceWindow, bool) {
	for _, w := range windows {
		if w.Contains(now) {
			return w, true
		}
	}
	return PeaceWindow{}, false
}

// NextPeace returns the earliest window start after now. Attacks landing
// after it are vetoed.
func NextPeace(windows []PeaceWindow, now time.Time) (time.Time, bool) {
	var next time.Time
	found := false
	for _, w := range windows {
		if !w.Start.After(now) {
			continue
		}
		if !found || w.Start.Before(next) {
			next = w.Start
			found = true
		}
	}
	return next, found
}
