package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-subsidy-backend/internal/http/middleware"
	"github.com/tbourn/go-subsidy-backend/internal/scheduler"
	"github.com/tbourn/go-subsidy-backend/internal/services"
)

// ErrorResponse is the body of every error answer. Clients branch on Code;
// Message is safe to show to users.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"slot_taken"`
	Message   string `json:"message" example:"slot already taken"`
}

// apiError is how an error is rendered on the wire.
type apiError struct {
	status  int
	code    string
	message string
}

// knownErrors renders service and scheduler sentinels. Lookup uses
// errors.Is in table order, so a slot error wins over the calendar error it
// may wrap.
var knownErrors = []struct {
	target error
	resp   apiError
}{
	{services.ErrSubsidyNotFound, apiError{http.StatusNotFound, ErrCodeNotFound, "subsidy not found"}},
	{services.ErrEmptyQuery, apiError{http.StatusBadRequest, ErrCodeBadRequest, "q required"}},
	{services.ErrInvalidBooking, apiError{http.StatusBadRequest, ErrCodeBadRequest, "company_name, contact_name and email are required"}},
	{services.ErrSlotTaken, apiError{http.StatusConflict, ErrCodeSlotTaken, "slot already taken"}},
	{services.ErrSlotUnavailable, apiError{http.StatusUnprocessableEntity, ErrCodeSlotUnavailable, "requested start is not a bookable slot"}},
	{scheduler.ErrInvalidDate, apiError{http.StatusBadRequest, ErrCodeBadRequest, "date must be YYYY-MM-DD"}},
	{scheduler.ErrCalendarUnavailable, apiError{http.StatusServiceUnavailable, ErrCodeCalendarUnavailable, "calendar unavailable, try again later"}},
}

// failErr answers with the first knownErrors entry matching err, or with
// fallback. The cause is logged for 5xx answers only.
func failErr(c *gin.Context, err error, fallback apiError) {
	resp := fallback
	for _, k := range knownErrors {
		if errors.Is(err, k.target) {
			resp = k.resp
			break
		}
	}
	respond(c, resp, err)
}

// fail aborts with the standard envelope.
func fail(c *gin.Context, status int, code, msg string) {
	respond(c, apiError{status: status, code: code, message: msg}, nil)
}

// Fail is fail for the router's fallback handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func respond(c *gin.Context, e apiError, cause error) {
	if e.status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", e.status).
			Str("code", e.code)
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg(e.message)
	}
	c.AbortWithStatusJSON(e.status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      e.code,
		Message:   e.message,
	})
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// notModified answers a conditional GET whose If-None-Match matched.
func notModified(c *gin.Context) {
	c.Status(http.StatusNotModified)
}
