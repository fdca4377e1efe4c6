package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/you/intella-booking/pkg/auth"
	"github.com/you/intella-booking/pkg/db"
	"github.com/you/intella-booking/pkg/lock"
	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/gateway"
	"github.com/you/intella-booking/services/booking-service/internal/meeting"
	"github.com/you/intella-booking/services/booking-service/internal/repository"
)

var (
	user  = Caller{ID: "user-1", Email: "user@example.com", Role: auth.RoleUser}
	host  = Caller{ID: "expert-1", Email: "expert@example.com", Role: auth.RoleHost}
	admin = Caller{ID: "admin-1", Role: auth.RoleAdmin}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeGateway struct {
	mu        sync.Mutex
	orders    int
	refunds   []gateway.RefundRequest
	refundErr error
}

func (g *fakeGateway) CreateOrder(_ context.Context, in gateway.OrderRequest) (gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders++
	return gateway.Order{ID: "order_" + in.Receipt}, nil
}

func (g *fakeGateway) Refund(_ context.Context, in gateway.RefundRequest) (gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return gateway.Refund{}, g.refundErr
	}
	g.refunds = append(g.refunds, in)
	return gateway.Refund{ID: "rfnd_" + in.IdempotencyKey, Status: "processed"}, nil
}

func (g *fakeGateway) setRefundErr(err error) {
	g.mu.Lock()
	g.refundErr = err
	g.mu.Unlock()
}

func (g *fakeGateway) refundCalls() []gateway.RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.RefundRequest(nil), g.refunds...)
}

type fakeMeetings struct {
	err   error
	calls int
}

func (m *fakeMeetings) CreateMeetingEvent(_ context.Context, in meeting.Request) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "https://meet.example.com/" + in.Room, nil
}

type harness struct {
	store       *repository.Store
	gw          *fakeGateway
	meet        *fakeMeetings
	clock       *clock
	locker      *lock.LocalLocker
	bookings    *BookingSvc
	capture     *CaptureSvc
	refunds     *RefundSvc
	expiry      *ExpirySvc
	withdrawals *WithdrawalSvc
	fees        *FeeSvc
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, true)
}

func newHarnessWith(t *testing.T, seedFees bool) *harness {
	t.Helper()
	gdb, err := db.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	store := repository.NewStore(gdb)
	require.NoError(t, store.Migrate())

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		store:  store,
		gw:     &fakeGateway{},
		meet:   &fakeMeetings{},
		clock:  &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		locker: lock.NewLocalLocker(),
	}
	now := h.clock.Now
	h.bookings = NewBookingSvc(BookingDeps{
		Store: store, Gateway: h.gw, Meetings: h.meet, IDs: node,
		Location: time.UTC, Currency: "INR", Now: now,
	})
	h.capture = NewCaptureSvc(store, nil, now)
	h.refunds = NewRefundSvc(store, h.gw, RefundPolicy{MaxAttempts: 2, BackoffBase: time.Minute, BackoffMax: time.Hour}, nil, now)
	h.expiry = NewExpirySvc(ExpiryDeps{
		Store: store, Refunds: h.refunds, Locker: h.locker,
		LockTTL: time.Minute, NoShowGrace: 15 * time.Minute, Now: now,
	})
	h.withdrawals = NewWithdrawalSvc(store, h.locker, 15*time.Minute, nil, now)
	h.fees = NewFeeSvc(store, "INR", nil, now)

	if seedFees {
		_, err := h.fees.Replace(context.Background(), admin, decimal.NewFromInt(5), decimal.NewFromInt(20), "INR")
		require.NoError(t, err)
	}
	return h
}

// book creates a booking starting at 10:00 on the harness day.
func (h *harness) book(t *testing.T, amount int64) *domain.Booking {
	t.Helper()
	out, err := h.bookings.Create(context.Background(), user, CreateInput{
		ExpertID: host.ID, ExpertEmail: host.Email, Topic: "career advice",
		BookingDate: "2026-03-01", StartTime: "10:00", DurationMinutes: 30,
		Amount: decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
	return out.Booking
}

// pay delivers a capture webhook with the given gateway fee and tax.
func (h *harness) pay(t *testing.T, b *domain.Booking, fee, tax string) {
	t.Helper()
	out, err := h.capture.Handle(context.Background(), captured(b, fee, tax))
	require.NoError(t, err)
	require.Equal(t, OutcomeCaptured, out)
}

// settle accepts a paid booking and moves the clock past the session and
// its no-show grace.
func (h *harness) settle(t *testing.T, b *domain.Booking) {
	t.Helper()
	_, err := h.bookings.Accept(context.Background(), host, b.ID)
	require.NoError(t, err)
	h.clock.Advance(b.EndsAt.Sub(h.clock.Now()) + 15*time.Minute)
}

func (h *harness) reload(t *testing.T, id string) *domain.Booking {
	t.Helper()
	b, err := h.store.Bookings.ByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (h *harness) ledger(t *testing.T, id string) []domain.LedgerEntry {
	t.Helper()
	rows, err := h.store.Ledger.ByBooking(context.Background(), id)
	require.NoError(t, err)
	return rows
}

func captured(b *domain.Booking, fee, tax string) PaymentEvent {
	return PaymentEvent{
		EventID:    "evt_" + b.ID,
		Event:      EventPaymentCaptured,
		PaymentID:  "pay_" + b.OrderCode,
		OrderID:    b.GatewayOrderID,
		BookingID:  b.ID,
		Amount:     b.Amount,
		GatewayFee: decimal.RequireFromString(fee),
		GatewayTax: decimal.RequireFromString(tax),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var errGatewayDown = errors.New("gateway unavailable")
