package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
	"github.com/you/intella-booking/services/booking-service/internal/service"
)

type bookingView struct {
	ID              string               `json:"id"`
	OrderCode       string               `json:"order_code"`
	GatewayOrderID  string               `json:"gateway_order_id,omitempty"`
	UserID          string               `json:"user_id"`
	ExpertID        string               `json:"expert_id"`
	Topic           string               `json:"topic,omitempty"`
	BookingDate     string               `json:"booking_date"`
	StartTime       string               `json:"start_time"`
	DurationMinutes int                  `json:"duration_minutes"`
	StartsAt        time.Time            `json:"starts_at"`
	EndsAt          time.Time            `json:"ends_at"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        string               `json:"currency"`
	Status          domain.Status        `json:"status"`
	PaymentStatus   domain.PaymentStatus `json:"payment_status"`
	PGFee           decimal.Decimal      `json:"pg_fee"`
	IntellaFee      decimal.Decimal      `json:"intella_fee"`
	ExpertEarning   decimal.Decimal      `json:"expert_earning"`
	RefundStatus    domain.RefundStatus  `json:"refund_status,omitempty"`
	RefundAmount    decimal.Decimal      `json:"refund_amount"`
	HostAccepted    bool                 `json:"host_accepted"`
	MeetingLink     string               `json:"meeting_link,omitempty"`
	RejectedBy      domain.Actor         `json:"rejected_by,omitempty"`
	CancelledBy     domain.Actor         `json:"cancelled_by,omitempty"`
	NoShow          string               `json:"no_show,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

func viewOf(b *domain.Booking) bookingView {
	return bookingView{
		ID: b.ID, OrderCode: b.OrderCode, GatewayOrderID: b.GatewayOrderID,
		UserID: b.UserID, ExpertID: b.ExpertID, Topic: b.Topic,
		BookingDate: b.BookingDate, StartTime: b.StartTime, DurationMinutes: b.DurationMinutes,
		StartsAt: b.StartsAt, EndsAt: b.EndsAt,
		Amount: b.Amount, Currency: b.Currency,
		Status: b.Status, PaymentStatus: b.PaymentStatus,
		PGFee: b.PGFee, IntellaFee: b.IntellaFee, ExpertEarning: b.ExpertEarning,
		RefundStatus: b.RefundStatus, RefundAmount: b.RefundAmount,
		HostAccepted: b.HostAccepted, MeetingLink: b.MeetingLink,
		RejectedBy: b.RejectedBy, CancelledBy: b.CancelledBy, NoShow: b.NoShow,
		CreatedAt: b.CreatedAt,
	}
}

// bookingRef accepts both spellings the clients send.
type bookingRef struct {
	BookingID      string `json:"booking_id"`
	BookingIDCamel string `json:"bookingId"`
	Reason         string `json:"reason"`
}

func (r bookingRef) id() string {
	if r.BookingID != "" {
		return r.BookingID
	}
	return r.BookingIDCamel
}

func bindRef(c *gin.Context, required bool) (bookingRef, bool) {
	var in bookingRef
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return in, false
	}
	if required && in.id() == "" {
		writeError(c, fmt.Errorf("%w: bookingId is required", domain.ErrInvalidInput))
		return in, false
	}
	return in, true
}

type BookingHandler struct {
	bookings *service.BookingSvc
	refunds  *service.RefundSvc
	expiry   *service.ExpirySvc
}

func NewBookingHandler(b *service.BookingSvc, r *service.RefundSvc, e *service.ExpirySvc) *BookingHandler {
	return &BookingHandler{bookings: b, refunds: r, expiry: e}
}

// POST /bookings/create
func (h *BookingHandler) Create(c *gin.Context) {
	var in struct {
		ExpertID        string          `json:"expert_id" binding:"required"`
		ExpertEmail     string          `json:"expert_email"`
		Topic           string          `json:"topic"`
		BookingDate     string          `json:"booking_date" binding:"required"` // YYYY-MM-DD
		StartTime       string          `json:"start_time" binding:"required"`   // HH:MM
		DurationMinutes int             `json:"duration_minutes" binding:"required"`
		Amount          decimal.Decimal `json:"amount"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	out, err := h.bookings.Create(c.Request.Context(), callerOf(c), service.CreateInput{
		ExpertID: in.ExpertID, ExpertEmail: in.ExpertEmail, Topic: in.Topic,
		BookingDate: in.BookingDate, StartTime: in.StartTime,
		DurationMinutes: in.DurationMinutes, Amount: in.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"booking":  viewOf(out.Booking),
		"order_id": out.GatewayOrderID,
		"free":     out.Booking.Amount.IsZero(),
	})
}

// POST /bookings/accept
func (h *BookingHandler) Accept(c *gin.Context) {
	in, ok := bindRef(c, true)
	if !ok {
		return
	}
	b, err := h.bookings.Accept(c.Request.Context(), callerOf(c), in.id())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": viewOf(b)})
}

func (h *BookingHandler) terminate(c *gin.Context, fn func(context.Context, service.Caller, string, string) (*service.Terminated, error)) {
	in, ok := bindRef(c, true)
	if !ok {
		return
	}
	out, err := fn(c.Request.Context(), callerOf(c), in.id(), in.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": viewOf(out.Booking), "refund_queued": out.RefundQueued})
}

// POST /bookings/host-reject
func (h *BookingHandler) HostReject(c *gin.Context) { h.terminate(c, h.bookings.HostReject) }

// POST /bookings/host-cancel
func (h *BookingHandler) HostCancel(c *gin.Context) { h.terminate(c, h.bookings.HostCancel) }

// POST /bookings/user-cancel
func (h *BookingHandler) UserCancel(c *gin.Context) { h.terminate(c, h.bookings.UserCancel) }

// POST /bookings/confirm-free
func (h *BookingHandler) ConfirmFree(c *gin.Context) {
	in, ok := bindRef(c, true)
	if !ok {
		return
	}
	b, first, err := h.bookings.ConfirmFree(c.Request.Context(), callerOf(c), in.id())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": viewOf(b), "notified": first})
}

// POST /bookings/join
func (h *BookingHandler) Join(c *gin.Context) {
	in, ok := bindRef(c, true)
	if !ok {
		return
	}
	b, err := h.bookings.RecordJoin(c.Request.Context(), callerOf(c), in.id())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": viewOf(b)})
}

// POST /bookings/run-expiry-jobs
func (h *BookingHandler) RunExpiryJobs(c *gin.Context) {
	rep, err := h.expiry.RunJobs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": rep})
}

// POST /bookings/process-expiry-refunds
func (h *BookingHandler) ProcessExpiryRefunds(c *gin.Context) {
	in, ok := bindRef(c, false)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if id := in.id(); id != "" {
		res, err := h.refunds.ProcessBooking(ctx, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "results": []service.RefundResult{*res}})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	rep, err := h.expiry.ProcessRefunds(ctx, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "backfilled": rep.Backfilled, "results": rep.Results})
}

// GET /bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), callerOf(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(b))
}

// GET /bookings?page=1&page_size=20&status=confirmed
func (h *BookingHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	rows, total, err := h.bookings.List(c.Request.Context(), callerOf(c), repository.ListFilter{
		UserID:   c.Query("user_id"),
		ExpertID: c.Query("expert_id"),
		Status:   domain.Status(c.Query("status")),
		Page:     page - 1,
		Size:     size,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]bookingView, 0, len(rows))
	for i := range rows {
		items = append(items, viewOf(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "page": page})
}

// GET /bookings/:id/ledger
func (h *BookingHandler) Ledger(c *gin.Context) {
	rows, err := h.bookings.Ledger(c.Request.Context(), callerOf(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	type entry struct {
		EntryType  domain.EntryType `json:"entry_type"`
		Direction  domain.Direction `json:"direction"`
		Amount     decimal.Decimal  `json:"amount"`
		OccurredAt time.Time        `json:"occurred_at"`
	}
	out := make([]entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, entry{EntryType: r.EntryType, Direction: r.Direction, Amount: r.Amount, OccurredAt: r.OccurredAt})
	}
	c.JSON(http.StatusOK, gin.H{"booking_id": c.Param("id"), "entries": out})
}
