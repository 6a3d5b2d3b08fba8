package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-subsidy-backend/internal/config"
)

// Policy is the business-hours policy. It is immutable once built.
type Policy struct {
	Weekdays      []time.Weekday
	DayStart      time.Duration // offset from local midnight
	DayEnd        time.Duration // offset from local midnight, exclusive
	SlotDuration  time.Duration
	HorizonMonths int
	MinLeadTime   time.Duration
	Location      *time.Location
}

// NewPolicy converts the booking configuration into a validated Policy.
func NewPolicy(cfg config.BookingConfig) (Policy, error) {
	start, err := config.ParseClock(cfg.DayStart)
	if err != nil {
		return Policy{}, err
	}
	end, err := config.ParseClock(cfg.DayEnd)
	if err != nil {
		return Policy{}, err
	}
	p := Policy{
		Weekdays:      append([]time.Weekday(nil), cfg.Weekdays...),
		DayStart:      start,
		DayEnd:        end,
		SlotDuration:  cfg.SlotDuration,
		HorizonMonths: cfg.HorizonMonths,
		MinLeadTime:   cfg.MinLeadTime,
		Location:      cfg.Location,
	}
	return p, p.Validate()
}

// Validate reports the first inconsistency in p.
func (p Policy) Validate() error {
	switch {
	case len(p.Weekdays) == 0:
		return errors.New("scheduler: at least one bookable weekday is required")
	case p.DayStart < 0 || p.DayEnd > 24*time.Hour:
		return errors.New("scheduler: business hours must lie within one day")
	case p.DayEnd <= p.DayStart:
		return errors.New("scheduler: day end must be after day start")
	case p.SlotDuration <= 0 || p.SlotDuration > p.DayEnd-p.DayStart:
		return fmt.Errorf("scheduler: slot duration %s does not fit business hours", p.SlotDuration)
	case p.HorizonMonths < 1:
		return errors.New("scheduler: booking horizon must be >= 1 month")
	case p.MinLeadTime < 0:
		return errors.New("scheduler: minimum lead time must be >= 0")
	}
	return nil
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Bookable reports whether d is an open weekday.
func (p Policy) Bookable(d time.Weekday) bool {
	for _, w := range p.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// at returns the wall-clock time offset from midnight of day in the policy
// location. Built from fields, not by adding to midnight, so DST days keep
// their nominal opening hours.
func (p Policy) at(day time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, p.location())
}

// Candidates enumerates every slot of day that lies entirely within business
// hours, in ascending order. It ignores the weekday set.
func (p Policy) Candidates(day time.Time) []Slot {
	open := p.at(day, p.DayStart)
	closeAt := p.at(day, p.DayEnd)
	var out []Slot
	for s := open; !s.Add(p.SlotDuration).After(closeAt); s = s.Add(p.SlotDuration) {
		out = append(out, Slot{Start: s, End: s.Add(p.SlotDuration), Available: true})
	}
	return out
}
