package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-subsidy-backend/internal/calendar"
	"github.com/tbourn/go-subsidy-backend/internal/domain"
	"github.com/tbourn/go-subsidy-backend/internal/repo"
	"github.com/tbourn/go-subsidy-backend/internal/scheduler"
)

// Monday 2026-03-02 08:00 UTC.
var bookingNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func testPolicy() scheduler.Policy {
	return scheduler.Policy{
		Weekdays:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		DayStart:      9 * time.Hour,
		DayEnd:        17 * time.Hour,
		SlotDuration:  time.Hour,
		HorizonMonths: 3,
		Location:      time.UTC,
	}
}

func newBookingService(t *testing.T, db *gorm.DB, cal scheduler.Calendar) *BookingService {
	t.Helper()
	if cal == nil {
		cal = calendar.Merge(calendar.NewStoreSource(db))
	}
	s, err := scheduler.New(testPolicy(), cal, scheduler.WithClock(func() time.Time { return bookingNow }))
	if err != nil {
		t.Fatal(err)
	}
	return NewBookingService(db, s, 0)
}

func bookingReq(start time.Time) BookingRequest {
	return BookingRequest{
		Start:       start,
		CompanyName: " Acme KK ",
		ContactName: "Sato",
		Email:       "sato@example.com",
	}
}

func TestNewBookingService_DefaultTTL(t *testing.T) {
	if s := NewBookingService(nil, nil, 0); s.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("ttl=%v", s.IdempotencyTTL)
	}
}

func TestBookingService_Availability(t *testing.T) {
	db := newTestDB(t)
	svc := newBookingService(t, db, nil)

	a, err := svc.Availability(context.Background(), "2026-03-03")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Slots) != 8 || a.Reason != "" {
		t.Fatalf("availability=%+v", a)
	}

	if _, err := svc.Availability(context.Background(), "03/03/2026"); !errors.Is(err, scheduler.ErrInvalidDate) {
		t.Fatalf("want ErrInvalidDate, got %v", err)
	}
}

func TestBookingService_Book_RemovesSlotAndRejectsSecond(t *testing.T) {
	db := newTestDB(t)
	svc := newBookingService(t, db, nil)
	ctx := context.Background()
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

	appt, replayed, err := svc.Book(ctx, "", "", bookingReq(start))
	if err != nil || replayed {
		t.Fatalf("Book: %v replayed=%v", err, replayed)
	}
	if appt.CompanyName != "Acme KK" || !appt.EndAt.Equal(start.Add(time.Hour)) {
		t.Fatalf("appt=%+v", appt)
	}

	a, _ := svc.Availability(ctx, "2026-03-03")
	if _, ok := a.Find(start); ok || len(a.Slots) != 7 {
		t.Fatalf("booked slot still offered: %+v", a.Slots)
	}

	if _, _, err := svc.Book(ctx, "", "", bookingReq(start)); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("want ErrSlotTaken, got %v", err)
	}
}

func TestBookingService_Book_UniqueIndexIsFinalArbiter(t *testing.T) {
	db := newTestDB(t)
	// A calendar that never reports anything busy, as if two requests
	// computed availability before either committed.
	free := scheduler.CalendarFunc(func(context.Context, time.Time) ([]scheduler.BusyInterval, error) {
		return nil, nil
	})
	svc := newBookingService(t, db, free)
	ctx := context.Background()
	start := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)

	if _, _, err := svc.Book(ctx, "", "", bookingReq(start)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Book(ctx, "", "", bookingReq(start)); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("want ErrSlotTaken, got %v", err)
	}
}

func TestBookingService_Book_Unavailable(t *testing.T) {
	db := newTestDB(t)
	svc := newBookingService(t, db, nil)
	ctx := context.Background()

	cases := map[string]time.Time{
		"misaligned":     time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC),
		"after hours":    time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC),
		"sunday":         time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC),
		"past":           time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC),
		"beyond horizon": time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	for name, start := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := svc.Book(ctx, "", "", bookingReq(start)); !errors.Is(err, ErrSlotUnavailable) {
				t.Fatalf("want ErrSlotUnavailable, got %v", err)
			}
		})
	}
}

func TestBookingService_Book_InvalidInput(t *testing.T) {
	db := newTestDB(t)
	svc := newBookingService(t, db, nil)
	req := bookingReq(time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
	req.Email = "  "
	if _, _, err := svc.Book(context.Background(), "", "", req); !errors.Is(err, ErrInvalidBooking) {
		t.Fatalf("want ErrInvalidBooking, got %v", err)
	}
}

func TestBookingService_Book_CalendarUnavailable(t *testing.T) {
	db := newTestDB(t)
	down := scheduler.CalendarFunc(func(context.Context, time.Time) ([]scheduler.BusyInterval, error) {
		return nil, errors.New("connection refused")
	})
	svc := newBookingService(t, db, down)
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	if _, _, err := svc.Book(context.Background(), "", "", bookingReq(start)); !errors.Is(err, scheduler.ErrCalendarUnavailable) {
		t.Fatalf("want ErrCalendarUnavailable, got %v", err)
	}
	var n int64
	db.Model(&domain.Appointment{}).Count(&n)
	if n != 0 {
		t.Fatalf("nothing should be stored, got %d", n)
	}
}

func TestBookingService_Book_IdempotentReplay(t *testing.T) {
	db := newTestDB(t)
	svc := newBookingService(t, db, nil)
	ctx := context.Background()
	start := time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC)

	first, replayed, err := svc.Book(ctx, "ip:10.0.0.1|appointments", "key-1", bookingReq(start))
	if err != nil || replayed {
		t.Fatalf("first: %v replayed=%v", err, replayed)
	}
	second, replayed, err := svc.Book(ctx, "ip:10.0.0.1|appointments", "key-1", bookingReq(start))
	if err != nil || !replayed || second.ID != first.ID {
		t.Fatalf("second: %+v replayed=%v err=%v", second, replayed, err)
	}

	// Same key from another client is independent.
	other := bookingReq(start.Add(time.Hour))
	third, replayed, err := svc.Book(ctx, "ip:10.0.0.2|appointments", "key-1", other)
	if err != nil || replayed || third.ID == first.ID {
		t.Fatalf("third: %+v replayed=%v err=%v", third, replayed, err)
	}

	prev, err := svc.Replay(ctx, "ip:10.0.0.1|appointments", "key-1")
	if err != nil || prev.ID != first.ID {
		t.Fatalf("Replay: %+v %v", prev, err)
	}
	if _, err := svc.Replay(ctx, "ip:10.0.0.1|appointments", "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestBookingService_Book_FailedBookingStoresNoKey(t *testing.T) {
	db := newTestDB(t)
	svc := newBookingService(t, db, nil)
	ctx := context.Background()
	start := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

	if _, _, err := svc.Book(ctx, "", "", bookingReq(start)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Book(ctx, "scope", "k", bookingReq(start)); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("want ErrSlotTaken, got %v", err)
	}
	if _, err := svc.Replay(ctx, "scope", "k"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("failed booking must not record its key, got %v", err)
	}
}
