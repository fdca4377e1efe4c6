package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

type errMapping struct {
	target error
	status int
	code   string
}

var apiErrors = []errMapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrPreconditionFailed, http.StatusConflict, "precondition_failed"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrBusy, http.StatusConflict, "job_running"},
	{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{domain.ErrGateway, http.StatusBadGateway, "gateway_error"},
	{domain.ErrMeeting, http.StatusInternalServerError, "meeting_creation_failed"},
	{domain.ErrFeeConfigMissing, http.StatusInternalServerError, "fee_config_missing"},
}

// webhookErrors follow the gateway contract: 4xx stops retries, 5xx asks for one.
var webhookErrors = []errMapping{
	{domain.ErrMissingBookingID, http.StatusBadRequest, "missing_booking_id"},
	{domain.ErrNotFound, http.StatusBadRequest, "booking_not_found"},
	{domain.ErrOrderCodeMissing, http.StatusBadRequest, "order_code_missing"},
	{domain.ErrFeeConfigMissing, http.StatusInternalServerError, "fee_config_missing"},
	{domain.ErrBookingUpdate, http.StatusInternalServerError, "booking_update_failed"},
}

func lookup(table []errMapping, err error, fallback string) (int, string) {
	for _, m := range table {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, fallback
}

func writeError(c *gin.Context, err error) {
	status, code := lookup(apiErrors, err, "internal_error")
	body := gin.H{"error": code}
	if status < http.StatusInternalServerError {
		body["message"] = err.Error()
	}
	c.JSON(status, body)
}

func writeWebhookError(c *gin.Context, err error) {
	status, code := lookup(webhookErrors, err, "webhook_error")
	c.JSON(status, gin.H{"error": code})
}
