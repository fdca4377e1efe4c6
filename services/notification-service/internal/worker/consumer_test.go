package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/you/intella-booking/pkg/db"
	"github.com/you/intella-booking/pkg/mq"
	"github.com/you/intella-booking/pkg/obs"
	"github.com/you/intella-booking/services/notification-service/internal/delivery"
	"github.com/you/intella-booking/services/notification-service/internal/events"
	"github.com/you/intella-booking/services/notification-service/internal/notifier"
)

type outbox struct {
	sent []notifier.Message
	fail map[string]error // by first recipient
}

func (o *outbox) Notify(_ context.Context, m notifier.Message) error {
	if err := o.fail[m.To[0]]; err != nil {
		return err
	}
	o.sent = append(o.sent, m)
	return nil
}

func newConsumer(t *testing.T, n notifier.Notifier) (*Consumer, *delivery.Log) {
	t.Helper()
	gdb, err := db.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	log := delivery.NewLog(gdb)
	require.NoError(t, log.Migrate())
	return NewConsumer(n, log, time.UTC, "ops@example.com", obs.Discard()), log
}

func bookingDelivery(t *testing.T, id, key string, b events.Booking) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(b)
	require.NoError(t, err)
	return amqp.Delivery{MessageId: id, RoutingKey: key, Body: body}
}

var accepted = events.Booking{
	BookingID: "b-1", OrderCode: "ORD-1", UserEmail: "user@example.com", ExpertEmail: "expert@example.com",
	Status: "confirmed", Amount: "500.00", Currency: "INR",
	StartsAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), MeetingLink: "https://meet.example.com/x",
}

func TestAcceptedNotifiesBothParticipants(t *testing.T) {
	o := &outbox{}
	c, log := newConsumer(t, o)
	require.NoError(t, c.Handle(context.Background(), bookingDelivery(t, "m-1", events.RKBookingAccepted, accepted)))

	require.Len(t, o.sent, 2)
	require.Contains(t, o.sent[0].Body, "https://meet.example.com/x")
	rows, err := log.ByMessage(context.Background(), "m-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, delivery.StatusSent, rows[0].Status)
	require.Equal(t, "b-1", rows[0].BookingID)
}

func TestRedeliveryResendsOnlyFailedRecipients(t *testing.T) {
	ctx := context.Background()
	o := &outbox{fail: map[string]error{"expert@example.com": errors.New("mailbox full")}}
	c, log := newConsumer(t, o)
	d := bookingDelivery(t, "m-2", events.RKBookingAccepted, accepted)

	err := c.Handle(ctx, d)
	require.Error(t, err)
	require.NotErrorIs(t, err, mq.ErrPoison)
	require.Len(t, o.sent, 1)

	o.fail = nil
	require.NoError(t, c.Handle(ctx, d))
	require.Len(t, o.sent, 2)
	require.Equal(t, []string{"expert@example.com"}, o.sent[1].To)

	rows, err := log.ByMessage(ctx, "m-2")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, delivery.StatusFailed, rows[1].Status)
	require.Equal(t, "mailbox full", rows[1].Error)
}

func TestExpiredRejectionMentionsRefund(t *testing.T) {
	o := &outbox{}
	c, _ := newConsumer(t, o)
	b := accepted
	b.Status, b.By = "rejected", "system"
	require.NoError(t, c.Handle(context.Background(), bookingDelivery(t, "m-3", events.RKBookingRejected, b)))
	require.Len(t, o.sent, 1)
	require.Contains(t, o.sent[0].Body, "expired")
	require.Contains(t, o.sent[0].Body, "refunded automatically")
}

func TestRefundFailureGoesToOps(t *testing.T) {
	o := &outbox{}
	c, _ := newConsumer(t, o)
	require.NoError(t, c.Handle(context.Background(), bookingDelivery(t, "m-4", events.RKRefundFailed, accepted)))
	require.Equal(t, []string{"ops@example.com"}, o.sent[0].To)
}

func TestWithdrawalRequested(t *testing.T) {
	o := &outbox{}
	c, _ := newConsumer(t, o)
	body, _ := json.Marshal(events.Withdrawal{WithdrawalID: "w-1", ExpertID: "expert-1", Amount: "100.00", Status: "pending"})
	require.NoError(t, c.Handle(context.Background(), amqp.Delivery{MessageId: "m-5", RoutingKey: events.RKWithdrawalRequested, Body: body}))
	require.Equal(t, "New withdrawal request w-1", o.sent[0].Subject)
}

func TestUndecodablePayloadIsPoison(t *testing.T) {
	c, _ := newConsumer(t, &outbox{})
	err := c.Handle(context.Background(), amqp.Delivery{RoutingKey: events.RKBookingCreated, Body: []byte("not json")})
	require.ErrorIs(t, err, mq.ErrPoison)
}

func TestInternalEventsAreSilent(t *testing.T) {
	o := &outbox{}
	c, _ := newConsumer(t, o)
	require.NoError(t, c.Handle(context.Background(), bookingDelivery(t, "m-6", events.RKRefundRequested, accepted)))
	require.Empty(t, o.sent)
}
