package calendar

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-subsidy-backend/internal/repo"
	"github.com/tbourn/go-subsidy-backend/internal/scheduler"
)

// StoreSource reports booked appointments as busy intervals so a slot taken
// through this service disappears before the remote calendar syncs it.
type StoreSource struct {
	db *gorm.DB
}

// NewStoreSource wraps a database handle.
func NewStoreSource(db *gorm.DB) *StoreSource { return &StoreSource{db: db} }

// BusyIntervals implements scheduler.Calendar.
func (s *StoreSource) BusyIntervals(ctx context.Context, day time.Time) ([]scheduler.BusyInterval, error) {
	start := time.Now()
	appts, err := repo.ListAppointmentsBetween(ctx, s.db, day, day.AddDate(0, 0, 1))
	observeLookup("store", start, err)
	if err != nil {
		return nil, err
	}
	out := make([]scheduler.BusyInterval, 0, len(appts))
	for _, a := range appts {
		out = append(out, scheduler.BusyInterval{Start: a.StartAt, End: a.EndAt})
	}
	return out, nil
}
