// Booking HTTP handlers.
//
// This file exposes free-consultation booking:
//   - GET  /availability?date=YYYY-MM-DD
//   - POST /appointments   (Idempotency-Key supported)
//
// Availability and bookings are never cached by clients; the router marks
// these paths no-store.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-subsidy-backend/internal/http/middleware"
	"github.com/tbourn/go-subsidy-backend/internal/scheduler"
	"github.com/tbourn/go-subsidy-backend/internal/services"
)

//
// DTOs
//

// CreateAppointmentRequest is the request body for POST /appointments.
type CreateAppointmentRequest struct {
	Start       time.Time `json:"start"        binding:"required"           example:"2026-03-03T10:00:00+09:00"`
	CompanyName string    `json:"company_name" binding:"required,max=255"   example:"Example K.K."`
	ContactName string    `json:"contact_name" binding:"required,max=255"   example:"Taro Yamada"`
	Email       string    `json:"email"        binding:"required,email"     example:"taro@example.com"`
	Phone       string    `json:"phone"        binding:"omitempty,max=32"   example:"03-1234-5678"`
	Note        string    `json:"note"         binding:"omitempty,max=2000" example:"Interested in IT subsidies"`
}

//
// Handlers
//

// GetAvailability godoc
// @ID          getAvailability
// @Summary     Free consultation slots for a date
// @Description Returns the bookable slots for date. An empty list carries a reason (past_date, beyond_horizon, closed_day, fully_booked).
// @Tags        Bookings
// @Produce     json
//
// @Param       date  query  string  true  "Date (YYYY-MM-DD)"  example(2026-03-03)
//
// @Success     200  {object} scheduler.Availability
// @Failure     400  {object} handlers.ErrorResponse "Invalid date"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     503  {object} handlers.ErrorResponse "Calendar unavailable"
// @Router      /availability [get]
func (h *Handlers) GetAvailability(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date required (YYYY-MM-DD)")
		return
	}

	a, err := h.bookingSvc.Availability(c.Request.Context(), date)
	if err != nil {
		failErr(c, err, apiError{http.StatusInternalServerError, ErrCodeInternal, "could not compute availability"})
		return
	}
	if a.Slots == nil {
		a.Slots = []scheduler.Slot{}
	}
	ok(c, http.StatusOK, a)
}

// CreateAppointment godoc
// @ID          createAppointment
// @Summary     Book a consultation
// @Description Books the slot starting at start. With Idempotency-Key, a retry returns the original appointment (200 with Idempotency-Replayed: true) instead of booking again.
// @Tags        Bookings
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string                               false "Idempotency key"  maxlength(200)
// @Param       body             body    handlers.CreateAppointmentRequest    true  "Booking"
//
// @Success     201  {object} domain.Appointment
// @Success     200  {object} domain.Appointment "Replayed"
// @Header      200  {string} Idempotency-Replayed "true on replay"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Slot already taken"
// @Failure     422  {object} handlers.ErrorResponse "Slot not bookable"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     503  {object} handlers.ErrorResponse "Calendar unavailable"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /appointments [post]
func (h *Handlers) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body: start, company_name, contact_name and a valid email are required")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	scope := middleware.GetIdempotencyScope(c)

	appt, replayed, err := h.bookingSvc.Book(c.Request.Context(), scope, key, services.BookingRequest{
		Start:       req.Start,
		CompanyName: req.CompanyName,
		ContactName: req.ContactName,
		Email:       req.Email,
		Phone:       req.Phone,
		Note:        req.Note,
	})
	if err != nil {
		failErr(c, err, apiError{http.StatusInternalServerError, ErrCodeBookingFailed, "could not book appointment"})
		return
	}

	if replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, appt)
		return
	}
	c.Header("Location", "/appointments/"+appt.ID)
	ok(c, http.StatusCreated, appt)
}
