package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-subsidy-backend/internal/scheduler"
)

// Merged is the union of several calendars. If any source fails the whole
// lookup fails: a partial answer could report a booked slot as free.
type Merged struct {
	sources []scheduler.Calendar
}

// Merge combines sources; nil entries are skipped.
func Merge(sources ...scheduler.Calendar) *Merged {
	m := &Merged{}
	for _, s := range sources {
		if s != nil {
			m.sources = append(m.sources, s)
		}
	}
	return m
}

// BusyIntervals queries every source concurrently and returns the sorted
// union. The first failure cancels the remaining lookups.
func (m *Merged) BusyIntervals(ctx context.Context, day time.Time) ([]scheduler.BusyInterval, error) {
	results := make([][]scheduler.BusyInterval, len(m.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m.sources {
		g.Go(func() error {
			b, err := src.BusyIntervals(gctx, day)
			if err != nil {
				return fmt.Errorf("calendar source %d: %w", i, err)
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []scheduler.BusyInterval
	for _, b := range results {
		out = append(out, b...)
	}
	sortIntervals(out)
	return out, nil
}
