// Package calendar provides the busy-interval sources the slot scheduler
// consults: the remote calendar that owns staff availability, the booked
// appointments in the datastore, and a merge of both.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tbourn/go-subsidy-backend/internal/config"
	"github.com/tbourn/go-subsidy-backend/internal/scheduler"
)

// ErrUpstream is returned when the calendar answers with a non-2xx status or
// an unreadable body.
var ErrUpstream = errors.New("calendar: upstream error")

const maxBodyBytes = 1 << 20

type busyResponse struct {
	Busy []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"busy"`
}

// HTTPSource reads busy intervals from a free/busy JSON endpoint:
//
//	GET {base}/busy?calendar={id}&timeMin={RFC3339}&timeMax={RFC3339}
//	-> {"busy":[{"start":"...","end":"..."}]}
//
// Outbound calls are throttled by a token bucket so a burst of availability
// requests cannot exhaust the provider's quota.
type HTTPSource struct {
	baseURL    string
	token      string
	calendarID string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPSource builds a source from configuration. client may be nil.
func NewHTTPSource(cfg config.CalendarConfig, client *http.Client) (*HTTPSource, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("calendar: CALENDAR_URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("calendar: CALENDAR_URL: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &HTTPSource{
		baseURL:    base,
		token:      cfg.Token,
		calendarID: cfg.ID,
		httpClient: client,
		limiter:    lim,
	}, nil
}

// BusyIntervals implements scheduler.Calendar.
func (s *HTTPSource) BusyIntervals(ctx context.Context, day time.Time) ([]scheduler.BusyInterval, error) {
	start := time.Now()
	out, err := s.fetch(ctx, day)
	observeLookup("http", start, err)
	return out, err
}

func (s *HTTPSource) fetch(ctx context.Context, day time.Time) ([]scheduler.BusyInterval, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("calendar: throttled: %w", err)
	}

	q := url.Values{}
	q.Set("calendar", s.calendarID)
	q.Set("timeMin", day.Format(time.RFC3339))
	q.Set("timeMax", day.AddDate(0, 0, 1).Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/busy?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var br busyResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}

	out := make([]scheduler.BusyInterval, 0, len(br.Busy))
	for _, b := range br.Busy {
		if !b.End.After(b.Start) {
			continue
		}
		out = append(out, scheduler.BusyInterval{Start: b.Start, End: b.End})
	}
	sortIntervals(out)
	return out, nil
}

func sortIntervals(in []scheduler.BusyInterval) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].Start.Equal(in[j].Start) {
			return in[i].End.Before(in[j].End)
		}
		return in[i].Start.Before(in[j].Start)
	})
}
