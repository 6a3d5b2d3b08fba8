// Package services – BookingService
//
// This file implements BookingService, which exposes consultation
// availability and books appointments into free slots.
//
// A booking is accepted only when the requested start is one of the slots the
// scheduler currently reports as free. The unique index on start_at is the
// final arbiter when two requests race for the same slot: the loser gets
// ErrSlotTaken. When the caller supplies an idempotency key, the appointment
// and the key are written in one transaction, and a retry with the same key
// returns the original appointment instead of booking twice.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-subsidy-backend/internal/domain"
	"github.com/tbourn/go-subsidy-backend/internal/repo"
	"github.com/tbourn/go-subsidy-backend/internal/scheduler"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BookingRequest carries the validated input of a booking.
type BookingRequest struct {
	Start       time.Time
	CompanyName string
	ContactName string
	Email       string
	Phone       string
	Note        string
}

// BookingService coordinates the scheduler and appointment persistence.
type BookingService struct {
	DB        *gorm.DB
	Scheduler *scheduler.Scheduler

	// IdempotencyTTL is how long a key replays its appointment (default 24h).
	IdempotencyTTL time.Duration
}

// NewBookingService constructs a BookingService.
func NewBookingService(db *gorm.DB, s *scheduler.Scheduler, idemTTL time.Duration) *BookingService {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &BookingService{DB: db, Scheduler: s, IdempotencyTTL: idemTTL}
}

// Availability returns the free slots for date (YYYY-MM-DD).
func (s *BookingService) Availability(ctx context.Context, date string) (scheduler.Availability, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Availability", trace.WithAttributes(attribute.String("date", date)))
	defer span.End()

	a, err := s.Scheduler.ComputeSlots(ctx, date)
	if err != nil {
		span.RecordError(err)
		return scheduler.Availability{}, err
	}
	span.SetAttributes(attribute.Int("slots", len(a.Slots)), attribute.String("reason", string(a.Reason)))
	return a, nil
}

// Replay returns the appointment previously booked under (scope, key), or
// repo.ErrNotFound.
func (s *BookingService) Replay(ctx context.Context, scope, key string) (*domain.Appointment, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, scope, key, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return repo.GetAppointment(ctx, s.DB, rec.ResourceID)
}

// Book reserves req.Start. The returned bool is true when the appointment is
// a replay of an earlier request with the same (scope, key).
func (s *BookingService) Book(ctx context.Context, scope, key string, req BookingRequest) (*domain.Appointment, bool, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Book",
		trace.WithAttributes(
			attribute.String("slot.start", req.Start.UTC().Format(time.RFC3339)),
			attribute.Bool("idempotent", key != ""),
		),
	)
	defer span.End()

	if key != "" {
		if prev, err := s.Replay(ctx, scope, key); err == nil {
			span.SetAttributes(attribute.Bool("replayed", true))
			return prev, true, nil
		}
	}

	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.ContactName = strings.TrimSpace(req.ContactName)
	req.Email = strings.TrimSpace(req.Email)
	if req.Start.IsZero() || req.CompanyName == "" || req.ContactName == "" || req.Email == "" {
		return nil, false, ErrInvalidBooking
	}

	slot, err := s.freeSlot(ctx, req.Start)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	appt := &domain.Appointment{
		StartAt:     slot.Start,
		EndAt:       slot.End,
		CompanyName: req.CompanyName,
		ContactName: req.ContactName,
		Email:       req.Email,
		Phone:       strings.TrimSpace(req.Phone),
		Note:        strings.TrimSpace(req.Note),
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateAppointment(ctx, tx, appt); err != nil {
			return err
		}
		if key == "" {
			return nil
		}
		_, err := repo.CreateIdempotency(ctx, tx, scope, key, appt.ID, http.StatusCreated, s.IdempotencyTTL)
		return err
	})
	if err != nil {
		// A concurrent request with the same key won the race; serve its result.
		if key != "" {
			if prev, rerr := s.Replay(ctx, scope, key); rerr == nil {
				return prev, true, nil
			}
		}
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, false, ErrSlotTaken
		}
		span.RecordError(err)
		return nil, false, err
	}
	return appt, false, nil
}

// freeSlot resolves start to a slot that is currently free. A start the policy
// never offers yields ErrSlotUnavailable; an offered but occupied one yields
// ErrSlotTaken.
func (s *BookingService) freeSlot(ctx context.Context, start time.Time) (scheduler.Slot, error) {
	p := s.Scheduler.Policy()
	date := start.In(s.Scheduler.Today().Location()).Format(scheduler.DateLayout)

	a, err := s.Scheduler.ComputeSlots(ctx, date)
	if err != nil {
		return scheduler.Slot{}, err
	}
	if slot, ok := a.Find(start); ok {
		return slot, nil
	}
	if a.Reason != "" && a.Reason != scheduler.ReasonFullyBooked {
		return scheduler.Slot{}, ErrSlotUnavailable
	}
	if start.Before(s.Scheduler.Now().Add(p.MinLeadTime)) {
		return scheduler.Slot{}, ErrSlotUnavailable
	}
	day, _ := s.Scheduler.ParseDate(date)
	for _, c := range p.Candidates(day) {
		if c.Start.Equal(start) {
			return scheduler.Slot{}, ErrSlotTaken
		}
	}
	return scheduler.Slot{}, ErrSlotUnavailable
}
