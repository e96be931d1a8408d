// Package session models when a venue accepts orders.
package session

import (
	"fmt"
	"sort"
	"time"
)

// Session reports market-hours state at a given instant. Timings return
// ok=false when the session cannot tell.
type Session interface {
	IsOpen(now time.Time) bool
	TimeToOpen(now time.Time) (time.Duration, bool)
	TimeToClose(now time.Time) (time.Duration, bool)
}

// Continuous treats the market as trading around the clock.
type Continuous struct{}

func (Continuous) IsOpen(time.Time) bool { return true }

func (Continuous) TimeToOpen(time.Time) (time.Duration, bool) { return 0, false }

func (Continuous) TimeToClose(time.Time) (time.Duration, bool) { return 0, false }

// Window is a [Start, End) clock range in minutes after midnight.
type Window struct {
	Start int
	End   int
}

func Clock(hour, minute int) int {
	return hour*60 + minute
}

// Schedule is a weekly set of intraday windows in one location. Holidays
// are not modeled.
type Schedule struct {
	Location *time.Location
	Windows  []Window
	Weekdays map[time.Weekday]bool
}

func NewSchedule(loc *time.Location, windows []Window, weekdays ...time.Weekday) (*Schedule, error) {
	if loc == nil {
		loc = time.Local
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("session: no windows")
	}
	ws := append([]Window(nil), windows...)
	for _, w := range ws {
		if w.Start < 0 || w.End > 24*60 || w.Start >= w.End {
			return nil, fmt.Errorf("session: bad window %d-%d", w.Start, w.End)
		}
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })
	if len(weekdays) == 0 {
		weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	}
	days := make(map[time.Weekday]bool, len(weekdays))
	for _, d := range weekdays {
		days[d] = true
	}
	return &Schedule{Location: loc, Windows: ws, Weekdays: days}, nil
}

// CTP returns the common Chinese futures day and night sessions.
func CTP() *Schedule {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	s, _ := NewSchedule(loc, []Window{
		{Start: Clock(9, 0), End: Clock(10, 15)},
		{Start: Clock(10, 30), End: Clock(11, 30)},
		{Start: Clock(13, 30), End: Clock(15, 0)},
		{Start: Clock(21, 0), End: Clock(23, 0)},
	})
	return s
}

func (s *Schedule) IsOpen(now time.Time) bool {
	_, ok := s.current(now)
	return ok
}

func (s *Schedule) TimeToClose(now time.Time) (time.Duration, bool) {
	end, ok := s.current(now)
	if !ok {
		return 0, false
	}
	return end.Sub(now), true
}

// TimeToOpen is zero while a window is open and looks ahead at most one week.
func (s *Schedule) TimeToOpen(now time.Time) (time.Duration, bool) {
	if s.IsOpen(now) {
		return 0, true
	}
	local := now.In(s.Location)
	for d := 0; d <= 7; d++ {
		day := local.AddDate(0, 0, d)
		if !s.Weekdays[day.Weekday()] {
			continue
		}
		for _, w := range s.Windows {
			start := at(day, w.Start)
			if start.After(local) {
				return start.Sub(local), true
			}
		}
	}
	return 0, false
}

func (s *Schedule) current(now time.Time) (time.Time, bool) {
	local := now.In(s.Location)
	if !s.Weekdays[local.Weekday()] {
		return time.Time{}, false
	}
	minute := Clock(local.Hour(), local.Minute())
	for _, w := range s.Windows {
		if minute >= w.Start && minute < w.End {
			return at(local, w.End), true
		}
	}
	return time.Time{}, false
}

func at(day time.Time, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, minute/60, minute%60, 0, 0, day.Location())
}
