package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/you/intella-booking/pkg/auth"
	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/gateway"
	"github.com/you/intella-booking/services/booking-service/internal/meeting"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
)

type BookingDeps struct {
	Store    *repository.Store
	Gateway  gateway.Gateway
	Meetings meeting.Scheduler
	IDs      *snowflake.Node
	Location *time.Location
	Currency string
	Logger   *slog.Logger
	Now      func() time.Time
}

type BookingSvc struct {
	store    *repository.Store
	gw       gateway.Gateway
	meet     meeting.Scheduler
	ids      *snowflake.Node
	loc      *time.Location
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

func NewBookingSvc(d BookingDeps) *BookingSvc {
	logger, now := defaults(d.Logger, d.Now)
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &BookingSvc{
		store: d.Store, gw: d.Gateway, meet: d.Meetings, ids: d.IDs,
		loc: loc, currency: d.Currency,
		logger: logger.With("module", "booking"),
		now:    now,
	}
}

type CreateInput struct {
	ExpertID        string
	ExpertEmail     string
	Topic           string
	BookingDate     string // YYYY-MM-DD
	StartTime       string // HH:MM
	DurationMinutes int
	Amount          decimal.Decimal
}

type Created struct {
	Booking        *domain.Booking
	GatewayOrderID string
}

func (s *BookingSvc) Create(ctx context.Context, c Caller, in CreateInput) (*Created, error) {
	if c.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	if in.ExpertID == "" || in.BookingDate == "" || in.StartTime == "" {
		return nil, fmt.Errorf("%w: expert_id, booking_date and start_time are required", domain.ErrInvalidInput)
	}
	if in.ExpertID == c.ID {
		return nil, fmt.Errorf("%w: cannot book yourself", domain.ErrInvalidInput)
	}
	if _, ok := domain.AllowedDurations[in.DurationMinutes]; !ok {
		return nil, fmt.Errorf("%w: duration_minutes must be 15, 30, 45 or 60", domain.ErrInvalidInput)
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be >= 0", domain.ErrInvalidInput)
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", in.BookingDate+" "+in.StartTime, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: booking_date/start_time: %v", domain.ErrInvalidInput, err)
	}
	now := s.now()
	if !start.After(now) {
		return nil, fmt.Errorf("%w: start must be in the future", domain.ErrInvalidInput)
	}

	b := &domain.Booking{
		ID:              uuid.NewString(),
		OrderCode:       s.orderCode(),
		UserID:          c.ID,
		UserEmail:       c.Email,
		ExpertID:        in.ExpertID,
		ExpertEmail:     in.ExpertEmail,
		Topic:           strings.TrimSpace(in.Topic),
		BookingDate:     in.BookingDate,
		StartTime:       in.StartTime,
		DurationMinutes: in.DurationMinutes,
		StartsAt:        start.UTC(),
		EndsAt:          start.Add(time.Duration(in.DurationMinutes) * time.Minute).UTC(),
		Amount:          in.Amount.Round(2),
		Currency:        s.currency,
		PaymentStatus:   domain.PaymentUnpaid,
		Status:          domain.StatusPendingConfirmation,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// free sessions skip the gateway leg entirely
	if b.Amount.IsZero() {
		b.PaymentStatus = domain.PaymentConfirmed
	} else {
		order, err := s.gw.CreateOrder(ctx, gateway.OrderRequest{
			Amount:   b.Amount,
			Currency: b.Currency,
			Receipt:  b.OrderCode,
			Notes:    map[string]string{"booking_id": b.ID, "order_code": b.OrderCode},
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "create gateway order failed", "operation", "create", "outcome", "failure", "order_code", b.OrderCode, "error", err)
			return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
		}
		b.GatewayOrderID = order.ID
	}

	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.Create(ctx, b); err != nil {
			return err
		}
		return tx.Outbox.Add(ctx, domain.RKBookingCreated, b.ID, domain.NewBookingEvent(b, now), now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "booking created", "operation", "create", "outcome", "success", "booking_id", b.ID, "order_code", b.OrderCode)
	return &Created{Booking: b, GatewayOrderID: b.GatewayOrderID}, nil
}

func (s *BookingSvc) orderCode() string {
	return "ORD-" + strings.ToUpper(s.ids.Generate().Base36())
}

// Accept confirms a pending booking. The meeting is created first so a
// booking is never confirmed without a link.
func (s *BookingSvc) Accept(ctx context.Context, c Caller, id string) (*domain.Booking, error) {
	b, err := s.loadFor(ctx, c, id, true)
	if err != nil {
		return nil, err
	}
	t, _ := domain.Plan(domain.EventHostAccept)
	if err := t.Check(b); err != nil {
		return nil, err
	}
	link, err := s.meet.CreateMeetingEvent(ctx, meeting.Request{
		Summary:     "Intella session " + b.OrderCode,
		Description: b.Topic,
		Start:       b.StartsAt,
		End:         b.EndsAt,
		Room:        "intella-" + b.OrderCode,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "create meeting failed", "operation", "accept", "outcome", "failure", "booking_id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrMeeting, err)
	}

	now := s.now()
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		u := t.Updates()
		u["host_accepted"] = true
		u["meeting_link"] = link
		u["updated_at"] = now
		if err := tx.Bookings.Transition(ctx, id, t.Expected(), u); err != nil {
			return err
		}
		apply(b, t)
		b.HostAccepted = true
		b.MeetingLink = link
		return tx.Outbox.Add(ctx, domain.RKBookingAccepted, b.ID, domain.NewBookingEvent(b, now), now)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "accept not applied", "operation", "accept", "outcome", "failure", "booking_id", id, "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "booking accepted", "operation", "accept", "outcome", "success", "booking_id", id)
	return b, nil
}

type Terminated struct {
	Booking      *domain.Booking
	RefundQueued bool
}

func (s *BookingSvc) HostReject(ctx context.Context, c Caller, id, reason string) (*Terminated, error) {
	return s.terminate(ctx, c, id, domain.EventHostReject, orDefault(reason, "host_rejected"))
}

func (s *BookingSvc) HostCancel(ctx context.Context, c Caller, id, reason string) (*Terminated, error) {
	return s.terminate(ctx, c, id, domain.EventHostCancel, orDefault(reason, "host_cancelled"))
}

func (s *BookingSvc) UserCancel(ctx context.Context, c Caller, id, reason string) (*Terminated, error) {
	return s.terminate(ctx, c, id, domain.EventUserCancel, orDefault(reason, "user_cancelled"))
}

// terminate moves a booking to a negative terminal state and queues the
// refund in the same transaction. The refund itself runs asynchronously.
func (s *BookingSvc) terminate(ctx context.Context, c Caller, id string, ev domain.Event, reason string) (*Terminated, error) {
	ctx, span := tracer.Start(ctx, "booking."+string(ev))
	var err error
	defer func() { endSpan(span, err) }()

	t, err := domain.Plan(ev)
	if err != nil {
		return nil, err
	}
	b, err := s.loadFor(ctx, c, id, t.By == domain.ActorHost)
	if err != nil {
		return nil, err
	}
	if err = t.Check(b); err != nil {
		return nil, err
	}

	now := s.now()
	out := &Terminated{Booking: b}
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		u := t.Updates()
		u["updated_at"] = now
		if err := tx.Bookings.Transition(ctx, id, t.Expected(), u); err != nil {
			return err
		}
		apply(b, t)
		msg := domain.NewBookingEvent(b, now)
		msg.Reason = reason
		if err := tx.Outbox.Add(ctx, routingKeyFor(b.Status), b.ID, msg, now); err != nil {
			return err
		}
		queued, err := enqueueRefund(ctx, tx, b, reason, initiatorFor(c, t.By), now)
		out.RefundQueued = queued
		return err
	})
	if err != nil {
		s.logger.WarnContext(ctx, "transition not applied", "operation", string(ev), "outcome", "failure", "booking_id", id, "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "booking terminated", "operation", string(ev), "outcome", "success",
		"booking_id", id, "status", b.Status, "refund_queued", out.RefundQueued)
	return out, nil
}

// ConfirmFree notifies the host about a free booking. Repeated calls are no-ops.
func (s *BookingSvc) ConfirmFree(ctx context.Context, c Caller, id string) (*domain.Booking, bool, error) {
	b, err := s.loadFor(ctx, c, id, false)
	if err != nil {
		return nil, false, err
	}
	if !b.Amount.IsZero() {
		return nil, false, fmt.Errorf("%w: booking %s is not free", domain.ErrInvalidInput, id)
	}
	t, _ := domain.Plan(domain.EventFreeConfirmed)
	if err := t.Check(b); err != nil {
		return nil, false, err
	}
	now := s.now()
	var first bool
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		ok, err := tx.Bookings.MarkFreeConfirmed(ctx, id, now)
		if err != nil || !ok {
			return err
		}
		first = true
		b.FreeConfirmedAt = &now
		return tx.Outbox.Add(ctx, domain.RKBookingFreeConfirmed, b.ID, domain.NewBookingEvent(b, now), now)
	})
	if err != nil {
		return nil, false, err
	}
	return b, first, nil
}

// RecordJoin stamps the caller's arrival in a confirmed session.
func (s *BookingSvc) RecordJoin(ctx context.Context, c Caller, id string) (*domain.Booking, error) {
	b, err := s.store.Bookings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(c.ID) {
		return nil, domain.ErrForbidden
	}
	if b.Status != domain.StatusConfirmed {
		return nil, fmt.Errorf("%w: booking %s is %s", domain.ErrPreconditionFailed, id, b.Status)
	}
	host := c.ID == b.ExpertID
	now := s.now()
	if _, err := s.store.Bookings.RecordJoin(ctx, id, host, now); err != nil {
		return nil, err
	}
	return s.store.Bookings.ByID(ctx, id)
}

func (s *BookingSvc) Get(ctx context.Context, c Caller, id string) (*domain.Booking, error) {
	b, err := s.store.Bookings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsAdmin() && !b.IsParticipant(c.ID) {
		return nil, domain.ErrForbidden
	}
	return b, nil
}

func (s *BookingSvc) List(ctx context.Context, c Caller, f repository.ListFilter) ([]domain.Booking, int64, error) {
	switch c.Role {
	case auth.RoleAdmin:
	case auth.RoleHost:
		f.ExpertID, f.UserID = c.ID, ""
	default:
		f.UserID, f.ExpertID = c.ID, ""
	}
	return s.store.Bookings.List(ctx, f)
}

func (s *BookingSvc) Ledger(ctx context.Context, c Caller, id string) ([]domain.LedgerEntry, error) {
	if _, err := s.Get(ctx, c, id); err != nil {
		return nil, err
	}
	return s.store.Ledger.ByBooking(ctx, id)
}

// loadFor loads a booking the caller may act on: the expert for host
// actions, the user otherwise. Admins may act on any booking.
func (s *BookingSvc) loadFor(ctx context.Context, c Caller, id string, host bool) (*domain.Booking, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: booking_id is required", domain.ErrInvalidInput)
	}
	b, err := s.store.Bookings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsAdmin() {
		return b, nil
	}
	owner := b.UserID
	if host {
		owner = b.ExpertID
	}
	if c.ID == "" || c.ID != owner {
		return nil, domain.ErrForbidden
	}
	return b, nil
}

func apply(b *domain.Booking, t domain.Transition) {
	b.Status = t.To
	switch t.To {
	case domain.StatusRejected:
		b.RejectedBy = t.By
	case domain.StatusCancelled:
		b.CancelledBy = t.By
	}
}

func routingKeyFor(s domain.Status) string {
	switch s {
	case domain.StatusRejected:
		return domain.RKBookingRejected
	case domain.StatusCancelled:
		return domain.RKBookingCancelled
	case domain.StatusConfirmed:
		return domain.RKBookingAccepted
	}
	return domain.RKBookingCreated
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
