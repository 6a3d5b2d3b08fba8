package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-subsidy-backend/internal/domain"
)

func newAppt(start time.Time) *domain.Appointment {
	return &domain.Appointment{
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
		CompanyName: "Acme KK",
		ContactName: "Sato",
		Email:       "sato@example.com",
	}
}

func TestCreateAppointment_DuplicateSlot(t *testing.T) {
	db := newTestDB(t, &domain.Appointment{})
	ctx := context.Background()
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

	a := newAppt(start)
	if err := CreateAppointment(ctx, db, a); err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected generated ID")
	}

	if err := CreateAppointment(ctx, db, newAppt(start)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}

	got, err := GetAppointment(ctx, db, a.ID)
	if err != nil || !got.StartAt.Equal(start) {
		t.Fatalf("GetAppointment: %+v %v", got, err)
	}
	if _, err := GetAppointment(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCreateAppointment_NoTable(t *testing.T) {
	db := newTestDB(t)
	err := CreateAppointment(context.Background(), db, newAppt(time.Now()))
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected non-duplicate error, got %v", err)
	}
}

func TestListAppointmentsBetween(t *testing.T) {
	db := newTestDB(t, &domain.Appointment{})
	ctx := context.Background()
	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	for _, h := range []int{9, 13, 16} {
		if err := CreateAppointment(ctx, db, newAppt(day.Add(time.Duration(h)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}
	// next day, must not show up
	if err := CreateAppointment(ctx, db, newAppt(day.Add(33*time.Hour))); err != nil {
		t.Fatal(err)
	}

	got, err := ListAppointmentsBetween(ctx, db, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].StartAt.Hour() != 9 || got[2].StartAt.Hour() != 16 {
		t.Fatalf("got %+v", got)
	}

	// a query window in another zone covering the same instants
	jst := time.FixedZone("JST", 9*3600)
	from := time.Date(2026, 3, 3, 18, 0, 0, 0, jst) // 09:00 UTC
	got, _ = ListAppointmentsBetween(ctx, db, from, from.Add(time.Hour))
	if len(got) != 1 {
		t.Fatalf("zone-normalised window: %+v", got)
	}
}
