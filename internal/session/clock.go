package session

import (
	"errors"
	"time"
)

// ErrNoActiveWindow is returned by Current when now falls outside every window.
// Only possible for schedules whose first window starts after midnight.
var ErrNoActiveWindow = errors.New("no active session window")

// Window is one session window. Remaining is measured from the instant the
// window was requested for: to End for an active window, to Start for an upcoming one.
type Window struct {
	Index     int // 1..8
	Start     time.Time
	End       time.Time
	Remaining time.Duration
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Clock maps instants onto a Schedule. It holds no mutable state.
type Clock struct {
	schedule *Schedule
}

// NewClock creates a clock over the given schedule.
func NewClock(schedule *Schedule) *Clock {
	return &Clock{schedule: schedule}
}

// Schedule returns the underlying schedule.
func (c *Clock) Schedule() *Schedule {
	return c.schedule
}

// WindowsOn returns the 8 windows of the calendar day containing t.
func (c *Clock) WindowsOn(t time.Time) []Window {
	t = t.In(c.schedule.location)
	y, m, d := t.Date()
	loc := c.schedule.location

	windows := make([]Window, WindowsPerDay)
	for i, st := range c.schedule.starts {
		start := time.Date(y, m, d, st.hour, st.minute, 0, 0, loc)
		var end time.Time
		if i == WindowsPerDay-1 {
			end = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		} else {
			next := c.schedule.starts[i+1]
			end = time.Date(y, m, d, next.hour, next.minute, 0, 0, loc)
		}
		windows[i] = Window{Index: i + 1, Start: start, End: end}
	}
	return windows
}

// Current returns the window containing now, with Remaining = End - now.
func (c *Clock) Current(now time.Time) (Window, error) {
	for _, w := range c.WindowsOn(now) {
		if w.Contains(now) {
			w.Remaining = nonNegative(w.End.Sub(now))
			return w, nil
		}
	}
	return Window{}, ErrNoActiveWindow
}

// Next returns the earliest window starting strictly after now,
// with Remaining = Start - now.
func (c *Clock) Next(now time.Time) Window {
	for _, day := range []time.Time{now, c.nextDay(now)} {
		for _, w := range c.WindowsOn(day) {
			if w.Start.After(now) {
				w.Remaining = nonNegative(w.Start.Sub(now))
				return w
			}
		}
	}
	// Unreachable: tomorrow always has a window after now.
	return Window{}
}

// LastClosed returns the most recent window with End <= asOf.
func (c *Clock) LastClosed(asOf time.Time) Window {
	for _, day := range []time.Time{asOf, c.prevDay(asOf)} {
		windows := c.WindowsOn(day)
		for i := len(windows) - 1; i >= 0; i-- {
			if !windows[i].End.After(asOf) {
				return windows[i]
			}
		}
	}
	// Unreachable: yesterday's last window always ended by today's midnight.
	return Window{}
}

// ClosedBetween returns, oldest first, every window whose End lies in (after, asOf].
func (c *Clock) ClosedBetween(after, asOf time.Time) []Window {
	if !asOf.After(after) {
		return nil
	}

	var result []Window
	day := after
	for {
		windows := c.WindowsOn(day)
		for _, w := range windows {
			if w.End.After(after) && !w.End.After(asOf) {
				result = append(result, w)
			}
		}
		if !windows[len(windows)-1].End.Before(asOf) {
			break
		}
		day = c.nextDay(day)
	}
	return result
}

// DayBounds returns [midnight, next midnight) of the calendar day containing t.
func (c *Clock) DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.In(c.schedule.location)
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, c.schedule.location)
	return start, time.Date(y, m, d+1, 0, 0, 0, 0, c.schedule.location)
}

func (c *Clock) nextDay(t time.Time) time.Time {
	_, end := c.DayBounds(t)
	return end
}

func (c *Clock) prevDay(t time.Time) time.Time {
	start, _ := c.DayBounds(t)
	return start.Add(-time.Nanosecond)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
