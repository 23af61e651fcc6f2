// Package session partitions each calendar day into fixed session windows.
// Everything here is a pure function of the injected time and the schedule.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WindowsPerDay is the number of session windows in a day.
const WindowsPerDay = 8

// DefaultStarts is the default wall-clock start of each window.
// The last window ends at midnight.
var DefaultStarts = []string{"06:00", "08:15", "10:30", "12:45", "15:00", "17:15", "19:30", "21:45"}

// ErrInvalidSchedule is returned for schedules that are not 8 contiguous,
// equal-length windows ending at midnight.
var ErrInvalidSchedule = errors.New("invalid session schedule")

// timeOfDay is a wall-clock boundary.
type timeOfDay struct {
	hour, minute int
}

func (t timeOfDay) minutes() int {
	return t.hour*60 + t.minute
}

func (t timeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.hour, t.minute)
}

// Schedule holds the configured window boundaries and their time zone.
type Schedule struct {
	starts   [WindowsPerDay]timeOfDay
	location *time.Location
}

// NewSchedule parses "HH:MM" start times. Window i ends where window i+1
// starts; the last window ends at midnight of the following day.
func NewSchedule(starts []string, loc *time.Location) (*Schedule, error) {
	if len(starts) != WindowsPerDay {
		return nil, fmt.Errorf("%w: want %d start times, got %d", ErrInvalidSchedule, WindowsPerDay, len(starts))
	}
	if loc == nil {
		loc = time.UTC
	}

	s := &Schedule{location: loc}
	for i, raw := range starts {
		t, err := time.Parse("15:04", strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: start %d %q: %v", ErrInvalidSchedule, i+1, raw, err)
		}
		s.starts[i] = timeOfDay{hour: t.Hour(), minute: t.Minute()}
	}

	length := s.endMinutes(0) - s.starts[0].minutes()
	for i := range s.starts {
		got := s.endMinutes(i) - s.starts[i].minutes()
		if got <= 0 {
			return nil, fmt.Errorf("%w: start %d (%s) is not after start %d", ErrInvalidSchedule, i+2, s.starts[(i+1)%WindowsPerDay], i+1)
		}
		if got != length {
			return nil, fmt.Errorf("%w: window %d lasts %dm, window 1 lasts %dm", ErrInvalidSchedule, i+1, got, length)
		}
	}

	return s, nil
}

// MustSchedule is NewSchedule that panics on error. For tests and package defaults.
func MustSchedule(starts []string, loc *time.Location) *Schedule {
	s, err := NewSchedule(starts, loc)
	if err != nil {
		panic(err)
	}
	return s
}

// endMinutes returns window i's end as minutes after its day's midnight.
func (s *Schedule) endMinutes(i int) int {
	if i == WindowsPerDay-1 {
		return 24 * 60
	}
	return s.starts[i+1].minutes()
}

// Location returns the schedule's time zone.
func (s *Schedule) Location() *time.Location {
	return s.location
}

// WindowLength returns the duration of every window.
func (s *Schedule) WindowLength() time.Duration {
	return time.Duration(s.endMinutes(0)-s.starts[0].minutes()) * time.Minute
}

// Exhaustive reports whether the windows cover the whole day.
func (s *Schedule) Exhaustive() bool {
	return s.starts[0].minutes() == 0
}

// Starts returns the configured start times as "HH:MM".
func (s *Schedule) Starts() []string {
	out := make([]string, WindowsPerDay)
	for i, st := range s.starts {
		out[i] = st.String()
	}
	return out
}
