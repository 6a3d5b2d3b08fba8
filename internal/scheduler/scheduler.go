// Package scheduler computes bookable consultation slots for a date.
//
// Slot arithmetic is local and pure (Policy.Candidates, FreeSlots). The only
// I/O is the Calendar lookup, which is bounded by a timeout; any failure there
// surfaces as ErrCalendarUnavailable so callers can tell "fully booked" from
// "unknown".
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidDate is returned for a date that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("scheduler: invalid date")
	// ErrCalendarUnavailable is returned when busy intervals could not be read.
	ErrCalendarUnavailable = errors.New("scheduler: calendar unavailable")
)

// DateLayout is the accepted date format.
const DateLayout = "2006-01-02"

// Reason explains an empty slot list.
type Reason string

const (
	ReasonPastDate      Reason = "past_date"
	ReasonBeyondHorizon Reason = "beyond_horizon"
	ReasonClosedDay     Reason = "closed_day"
	ReasonFullyBooked   Reason = "fully_booked"
)

// OutOfRange reports whether r means the date was outside the bookable window.
func (r Reason) OutOfRange() bool {
	return r == ReasonPastDate || r == ReasonBeyondHorizon
}

// BusyInterval is a half-open [Start, End) range during which nothing can be booked.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Slot is a bookable time range. Output only.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// Overlaps reports whether s intersects b.
func (s Slot) Overlaps(b BusyInterval) bool {
	return s.Start.Before(b.End) && s.End.After(b.Start)
}

// Availability is the result of ComputeSlots.
type Availability struct {
	Date   string `json:"date"`
	Slots  []Slot `json:"slots"`
	Reason Reason `json:"reason,omitempty"`
}

// Find returns the slot starting at start, if present.
func (a Availability) Find(start time.Time) (Slot, bool) {
	for _, s := range a.Slots {
		if s.Start.Equal(start) {
			return s, true
		}
	}
	return Slot{}, false
}

// Calendar returns the busy intervals overlapping the local day that starts at day.
type Calendar interface {
	BusyIntervals(ctx context.Context, day time.Time) ([]BusyInterval, error)
}

// CalendarFunc adapts a function to Calendar.
type CalendarFunc func(ctx context.Context, day time.Time) ([]BusyInterval, error)

// BusyIntervals implements Calendar.
func (f CalendarFunc) BusyIntervals(ctx context.Context, day time.Time) ([]BusyInterval, error) {
	return f(ctx, day)
}

// FreeSlots returns the candidates that overlap none of busy, keeping order.
func FreeSlots(candidates []Slot, busy []BusyInterval) []Slot {
	out := make([]Slot, 0, len(candidates))
next:
	for _, c := range candidates {
		for _, b := range busy {
			if c.Overlaps(b) {
				continue next
			}
		}
		out = append(out, c)
	}
	return out
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCalendarTimeout bounds each calendar lookup (default 5s).
func WithCalendarTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	policy   Policy
	calendar Calendar
	timeout  time.Duration
	now      func() time.Time
}

// New builds a Scheduler over a validated policy.
func New(p Policy, cal Calendar, opts ...Option) (*Scheduler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if cal == nil {
		return nil, errors.New("scheduler: calendar is required")
	}
	s := &Scheduler{policy: p, calendar: cal, timeout: 5 * time.Second, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Policy returns the policy in effect.
func (s *Scheduler) Policy() Policy { return s.policy }

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time { return s.now() }

// Today returns local midnight of the current day in the policy location.
func (s *Scheduler) Today() time.Time {
	n := s.now().In(s.policy.location())
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
}

// ParseDate parses a YYYY-MM-DD date as local midnight in the policy location.
func (s *Scheduler) ParseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, s.policy.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return d, nil
}

// RangeReason reports why day cannot be booked at all, or "" if it can.
// The horizon is inclusive: today plus HorizonMonths is still bookable.
func (s *Scheduler) RangeReason(day time.Time) Reason {
	today := s.Today()
	switch {
	case day.Before(today):
		return ReasonPastDate
	case day.After(today.AddDate(0, s.policy.HorizonMonths, 0)):
		return ReasonBeyondHorizon
	case !s.policy.Bookable(day.Weekday()):
		return ReasonClosedDay
	}
	return ""
}

// ComputeSlots returns the free slots for date in ascending order.
//
// Dates out of range or on closed weekdays produce an empty list with a
// Reason and never reach the calendar.
func (s *Scheduler) ComputeSlots(ctx context.Context, date string) (Availability, error) {
	day, err := s.ParseDate(date)
	if err != nil {
		return Availability{}, err
	}
	out := Availability{Date: day.Format(DateLayout), Slots: []Slot{}}
	if r := s.RangeReason(day); r != "" {
		out.Reason = r
		return out, nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	busy, err := s.calendar.BusyIntervals(cctx, day)
	if err != nil {
		return Availability{}, fmt.Errorf("%w: %w", ErrCalendarUnavailable, err)
	}

	earliest := s.now().Add(s.policy.MinLeadTime)
	free := FreeSlots(s.policy.Candidates(day), busy)
	for _, sl := range free {
		if sl.Start.Before(earliest) {
			continue
		}
		out.Slots = append(out.Slots, sl)
	}
	if len(out.Slots) == 0 {
		out.Reason = ReasonFullyBooked
	}
	return out, nil
}
