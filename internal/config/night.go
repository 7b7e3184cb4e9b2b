package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day in minutes after midnight. 24:00 is
// allowed and means "end of day".
type ClockTime int

const minutesPerDay = 24 * 60

// ParseClock parses "HH:MM".
func ParseClock(v string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", v)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", v, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", v, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q out of range", v)
	}
	return ClockTime(h*60 + m), nil
}

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

// NightWindow is the half-open interval [Begin, End) during which no pump
// may be started. Begin > End wraps midnight; Begin == End is empty.
type NightWindow struct {
	Begin ClockTime
	End   ClockTime
}

// ParseNightWindow parses both edges of the window.
func ParseNightWindow(begin, end string) (NightWindow, error) {
	b, err := ParseClock(begin)
	if err != nil {
		return NightWindow{}, fmt.Errorf("night_begin: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return NightWindow{}, fmt.Errorf("night_end: %w", err)
	}
	return NightWindow{Begin: b, End: e}, nil
}

// Contains reports whether t, in its own location, falls inside the window.
func (w NightWindow) Contains(t time.Time) bool {
	m := ClockTime(t.Hour()*60 + t.Minute())
	switch {
	case w.Begin == w.End:
		return false
	case w.Begin < w.End:
		return m >= w.Begin && m < w.End
	default:
		return m >= w.Begin || m < w.End
	}
}

func (w NightWindow) String() string { return w.Begin.String() + "-" + w.End.String() }
