// Package services defines the business logic for the subsidy catalog and
// consultation bookings. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer. Scheduler errors (scheduler.ErrInvalidDate,
// scheduler.ErrCalendarUnavailable) pass through unchanged.
package services

import "errors"

// Catalog errors.
var (
	// ErrSubsidyNotFound indicates that the requested subsidy does not exist
	// or is not published.
	ErrSubsidyNotFound = errors.New("subsidy not found")

	// ErrEmptyQuery is returned when a search is requested without any
	// searchable text.
	ErrEmptyQuery = errors.New("query is empty")
)

// Booking errors.
var (
	// ErrInvalidBooking is returned when a booking request is missing required
	// contact details.
	ErrInvalidBooking = errors.New("invalid booking request")

	// ErrSlotUnavailable is returned when the requested start is not a slot the
	// policy offers (closed day, outside hours, misaligned, past or beyond the
	// horizon).
	ErrSlotUnavailable = errors.New("slot is not bookable")

	// ErrSlotTaken is returned when the requested slot exists but is already
	// booked or busy on the calendar.
	ErrSlotTaken = errors.New("slot already taken")
)
