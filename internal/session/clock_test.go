package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var threeHourStarts = []string{"00:00", "03:00", "06:00", "09:00", "12:00", "15:00", "18:00", "21:00"}

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestNewSchedule_Validation(t *testing.T) {
	tests := []struct {
		name   string
		starts []string
	}{
		{"too few", []string{"06:00", "08:15"}},
		{"not increasing", []string{"06:00", "05:00", "10:30", "12:45", "15:00", "17:15", "19:30", "21:45"}},
		{"unequal", []string{"06:00", "08:00", "10:30", "12:45", "15:00", "17:15", "19:30", "21:45"}},
		{"bad format", []string{"6am", "08:15", "10:30", "12:45", "15:00", "17:15", "19:30", "21:45"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchedule(tt.starts, time.UTC)
			assert.True(t, errors.Is(err, ErrInvalidSchedule), "got %v", err)
		})
	}

	s, err := NewSchedule(DefaultStarts, nil)
	require.NoError(t, err)
	assert.Equal(t, 135*time.Minute, s.WindowLength())
	assert.False(t, s.Exhaustive())
	assert.Equal(t, DefaultStarts, s.Starts())
}

func TestClock_CurrentMorning(t *testing.T) {
	clock := NewClock(MustSchedule(DefaultStarts, time.UTC))

	w, err := clock.Current(at(7, 0))
	require.NoError(t, err)

	assert.Equal(t, 1, w.Index)
	assert.Equal(t, at(6, 0), w.Start)
	assert.Equal(t, at(8, 15), w.End)
	assert.Equal(t, time.Hour+15*time.Minute, w.Remaining)
}

func TestClock_LastWindowEndsAtMidnight(t *testing.T) {
	clock := NewClock(MustSchedule(DefaultStarts, time.UTC))

	w, err := clock.Current(at(23, 59))
	require.NoError(t, err)

	assert.Equal(t, 8, w.Index)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), w.End)
	assert.Equal(t, time.Minute, w.Remaining)
}

func TestClock_BoundaryBelongsToLaterWindow(t *testing.T) {
	clock := NewClock(MustSchedule(DefaultStarts, time.UTC))

	w, err := clock.Current(at(8, 15))
	require.NoError(t, err)
	assert.Equal(t, 2, w.Index)
}

func TestClock_GapBeforeFirstWindow(t *testing.T) {
	clock := NewClock(MustSchedule(DefaultStarts, time.UTC))

	_, err := clock.Current(at(3, 0))
	assert.ErrorIs(t, err, ErrNoActiveWindow)

	next := clock.Next(at(3, 0))
	assert.Equal(t, 1, next.Index)
	assert.Equal(t, at(6, 0), next.Start)
	assert.Equal(t, 3*time.Hour, next.Remaining)
}

func TestClock_NextRollsToTomorrow(t *testing.T) {
	clock := NewClock(MustSchedule(DefaultStarts, time.UTC))

	next := clock.Next(at(22, 0))
	assert.Equal(t, 1, next.Index)
	assert.Equal(t, time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC), next.Start)
	assert.Equal(t, 8*time.Hour, next.Remaining)
}

func TestClock_ExhaustiveScheduleCoversEveryMinute(t *testing.T) {
	clock := NewClock(MustSchedule(threeHourStarts, time.UTC))
	require.True(t, clock.Schedule().Exhaustive())

	day := at(0, 0)
	for m := 0; m < 24*60; m++ {
		now := day.Add(time.Duration(m) * time.Minute)
		w, err := clock.Current(now)
		require.NoError(t, err, "minute %d", m)

		matches := 0
		for _, candidate := range clock.WindowsOn(now) {
			if candidate.Contains(now) {
				matches++
			}
		}
		assert.Equal(t, 1, matches, "minute %d", m)
		assert.Equal(t, m/180+1, w.Index, "minute %d", m)
		assert.GreaterOrEqual(t, w.Remaining, time.Duration(0))
	}
}

func TestClock_WindowsTileTheDay(t *testing.T) {
	clock := NewClock(MustSchedule(threeHourStarts, time.UTC))

	windows := clock.WindowsOn(at(12, 0))
	require.Len(t, windows, WindowsPerDay)

	start, end := clock.DayBounds(at(12, 0))
	assert.Equal(t, start, windows[0].Start)
	assert.Equal(t, end, windows[WindowsPerDay-1].End)
	for i := 1; i < len(windows); i++ {
		assert.Equal(t, windows[i-1].End, windows[i].Start, "gap or overlap before window %d", i+1)
	}
}

func TestClock_LastClosed(t *testing.T) {
	clock := NewClock(MustSchedule(DefaultStarts, time.UTC))

	w := clock.LastClosed(at(9, 0))
	assert.Equal(t, 1, w.Index)
	assert.Equal(t, at(8, 15), w.End)

	// End is inclusive for closure
	w = clock.LastClosed(at(8, 15))
	assert.Equal(t, 1, w.Index)

	// Before today's first window closes, yesterday's last one is the latest
	w = clock.LastClosed(at(7, 0))
	assert.Equal(t, 8, w.Index)
	assert.Equal(t, at(0, 0), w.End)
}

func TestClock_ClosedBetween(t *testing.T) {
	clock := NewClock(MustSchedule(DefaultStarts, time.UTC))

	windows := clock.ClosedBetween(at(8, 15), at(13, 0))
	require.Len(t, windows, 2)
	assert.Equal(t, 2, windows[0].Index)
	assert.Equal(t, 3, windows[1].Index)

	// Across midnight
	windows = clock.ClosedBetween(at(20, 0), time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	require.Len(t, windows, 3)
	assert.Equal(t, []int{7, 8, 1}, []int{windows[0].Index, windows[1].Index, windows[2].Index})

	assert.Empty(t, clock.ClosedBetween(at(13, 0), at(13, 0)))
}

func TestClock_TimeZone(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	clock := NewClock(MustSchedule(DefaultStarts, loc))

	// 01:30 UTC is 07:00 IST
	w, err := clock.Current(time.Date(2024, 3, 14, 1, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, w.Index)
	assert.Equal(t, time.Hour+15*time.Minute, w.Remaining)
}
