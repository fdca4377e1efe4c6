package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/you/intella-booking/services/booking-service/internal/gateway"
	"github.com/you/intella-booking/services/booking-service/internal/service"
)

// OmiseEvents re-fetches webhook events from Omise.
type OmiseEvents interface {
	RetrieveEvent(ctx context.Context, eventID string) (*gateway.OmiseEvent, error)
}

type WebhookHandler struct {
	capture        *service.CaptureSvc
	razorpaySecret string
	omise          OmiseEvents
	logger         *slog.Logger
}

func NewWebhookHandler(capture *service.CaptureSvc, razorpaySecret string, omise OmiseEvents, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{capture: capture, razorpaySecret: razorpaySecret, omise: omise, logger: logger.With("module", "webhook")}
}

type razorpayPayment struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Amount      int64           `json:"amount"`
	Fee         int64           `json:"fee"` // includes tax
	Tax         int64           `json:"tax"`
	Notes       json.RawMessage `json:"notes"`
	ErrorReason string          `json:"error_reason"`
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity razorpayPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// notes is an object when set and an empty array otherwise.
func (p razorpayPayment) note(key string) string {
	var m map[string]any
	if err := json.Unmarshal(p.Notes, &m); err != nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

// POST /razorpay/webhook
func (h *WebhookHandler) Razorpay(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook_error"})
		return
	}
	if !gateway.VerifyRazorpaySignature(body, c.GetHeader("X-Razorpay-Signature"), h.razorpaySecret) {
		h.logger.WarnContext(c.Request.Context(), "rejected unsigned webhook", "operation", "razorpay", "outcome", "failure")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
		return
	}
	var in razorpayWebhook
	if err := json.Unmarshal(body, &in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook_error"})
		return
	}
	p := in.Payload.Payment.Entity
	tax := gateway.FromMinor(p.Tax)
	h.handle(c, service.PaymentEvent{
		EventID:     c.GetHeader("X-Razorpay-Event-Id"),
		Event:       in.Event,
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		BookingID:   p.note("booking_id"),
		Amount:      gateway.FromMinor(p.Amount),
		GatewayFee:  gateway.FromMinor(p.Fee).Sub(tax),
		GatewayTax:  tax,
		ErrorReason: p.ErrorReason,
	})
}

// POST /webhooks/omise
func (h *WebhookHandler) Omise(c *gin.Context) {
	var inc struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := c.ShouldBindJSON(&inc); err != nil || inc.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook_error"})
		return
	}
	if h.omise == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook_error"})
		return
	}
	// trust only what Omise returns for this id
	ev, err := h.omise.RetrieveEvent(c.Request.Context(), inc.ID)
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "retrieve omise event failed", "operation", "omise", "outcome", "failure", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_event"})
		return
	}
	if ev.Charge == nil {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	ch := ev.Charge
	pe := service.PaymentEvent{
		EventID:    ev.ID,
		PaymentID:  ch.ID,
		Amount:     gateway.FromMinor(ch.Amount),
		GatewayFee: gateway.FromMinor(ch.Fee),
		GatewayTax: gateway.FromMinor(ch.FeeVat),
	}
	pe.BookingID, _ = ch.Metadata["booking_id"].(string)
	switch ch.Status {
	case "successful":
		pe.Event = service.EventPaymentCaptured
	case "failed", "expired", "reversed":
		pe.Event = service.EventPaymentFailed
		if ch.FailureCode != nil {
			pe.ErrorReason = *ch.FailureCode
		} else {
			pe.ErrorReason = ch.Status
		}
	default:
		// pending charges are settled by a later event
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	h.handle(c, pe)
}

func (h *WebhookHandler) handle(c *gin.Context, ev service.PaymentEvent) {
	out, err := h.capture.Handle(c.Request.Context(), ev)
	if err != nil {
		writeWebhookError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "outcome": out})
}
