package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/you/intella-booking/pkg/mq"
	"github.com/you/intella-booking/services/notification-service/internal/delivery"
	"github.com/you/intella-booking/services/notification-service/internal/events"
	"github.com/you/intella-booking/services/notification-service/internal/notifier"
)

// Bindings lists the routing keys the notification queue subscribes to.
var Bindings = []string{"booking.*", "withdrawal.*"}

type Consumer struct {
	notifier notifier.Notifier
	log      *delivery.Log
	loc      *time.Location
	opsEmail string
	logger   *slog.Logger
	now      func() time.Time
}

func NewConsumer(n notifier.Notifier, log *delivery.Log, loc *time.Location, opsEmail string, logger *slog.Logger) *Consumer {
	if loc == nil {
		loc = time.UTC
	}
	return &Consumer{
		notifier: n, log: log, loc: loc, opsEmail: opsEmail,
		logger: logger.With("module", "notify.consumer"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle is an mq.Handler: it renders the event, sends it and writes the
// delivery log. A failed send is requeued, an undecodable one dead-lettered.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) error {
	msgs, bookingID, err := c.render(d.RoutingKey, d.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", mq.ErrPoison, err)
	}
	var sendErrs []error
	for _, m := range msgs {
		if len(m.To) == 0 {
			c.logger.DebugContext(ctx, "no recipients", "routing_key", d.RoutingKey, "booking_id", bookingID)
			continue
		}
		recipients := strings.Join(m.To, ",")
		// redeliveries only resend what did not go out
		if sent, err := c.log.Sent(ctx, d.MessageId, recipients); err != nil {
			c.logger.WarnContext(ctx, "delivery log lookup failed", "message_id", d.MessageId, "error", err)
		} else if sent {
			continue
		}
		rec := &delivery.EmailDelivery{
			MessageID: d.MessageId, RoutingKey: d.RoutingKey, BookingID: bookingID,
			Recipients: recipients, Subject: m.Subject,
			Status: delivery.StatusSent, CreatedAt: c.now(),
		}
		if err := c.notifier.Notify(ctx, m); err != nil {
			rec.Status, rec.Error = delivery.StatusFailed, err.Error()
			sendErrs = append(sendErrs, err)
		}
		if err := c.log.Record(ctx, rec); err != nil {
			c.logger.WarnContext(ctx, "delivery log write failed", "message_id", d.MessageId, "error", err)
		}
	}
	if err := errors.Join(sendErrs...); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "notified", "operation", d.RoutingKey, "outcome", "success", "booking_id", bookingID)
	return nil
}

func (c *Consumer) render(key string, body []byte) ([]notifier.Message, string, error) {
	if strings.HasPrefix(key, "withdrawal.") {
		w, err := events.Decode[events.Withdrawal](body)
		if err != nil {
			return nil, "", err
		}
		return []notifier.Message{c.withdrawal(key, w)}, "", nil
	}

	b, err := events.Decode[events.Booking](body)
	if err != nil {
		return nil, "", err
	}
	when := notifier.HumanTime(b.StartsAt, c.loc)
	to := func(addrs ...string) []string {
		var out []string
		for _, a := range addrs {
			if a != "" {
				out = append(out, a)
			}
		}
		return out
	}

	var out []notifier.Message
	switch key {
	case events.RKBookingCreated:
		out = append(out, notifier.Message{To: to(b.UserEmail),
			Subject: "Booking " + b.OrderCode + " received",
			Body:    fmt.Sprintf("Your session on %s is waiting for the expert to accept.", when)})
	case events.RKBookingPaymentCaptured, events.RKBookingFreeConfirmed:
		if b.Status != "pending_confirmation" {
			break
		}
		out = append(out, notifier.Message{To: to(b.ExpertEmail),
			Subject: "New booking request " + b.OrderCode,
			Body:    fmt.Sprintf("A session on %s is waiting for your answer. It expires at the start time.", when)})
	case events.RKBookingAccepted:
		text := fmt.Sprintf("Your session on %s is confirmed.\nJoin: %s", when, b.MeetingLink)
		out = append(out,
			notifier.Message{To: to(b.UserEmail), Subject: "Booking " + b.OrderCode + " confirmed", Body: text},
			notifier.Message{To: to(b.ExpertEmail), Subject: "Booking " + b.OrderCode + " confirmed", Body: text})
	case events.RKBookingRejected:
		msg := fmt.Sprintf("Your session on %s was not accepted.", when)
		if b.By == "system" {
			msg = fmt.Sprintf("Your session on %s expired before the expert accepted it.", when)
		}
		out = append(out, notifier.Message{To: to(b.UserEmail), Subject: "Booking " + b.OrderCode + " not accepted", Body: withRefundNote(msg, b)})
	case events.RKBookingCancelled:
		msg := fmt.Sprintf("The session on %s was cancelled", when)
		if b.Reason != "" {
			msg += " (" + b.Reason + ")"
		}
		out = append(out, notifier.Message{To: to(b.UserEmail, b.ExpertEmail), Subject: "Booking " + b.OrderCode + " cancelled", Body: withRefundNote(msg+".", b)})
	case events.RKRefundSucceeded:
		out = append(out, notifier.Message{To: to(b.UserEmail),
			Subject: "Refund for " + b.OrderCode,
			Body:    fmt.Sprintf("We refunded %s %s for your session on %s.", b.RefundAmount, b.Currency, when)})
	case events.RKRefundFailed:
		out = append(out, notifier.Message{To: to(c.opsEmail),
			Subject: "Refund failed for " + b.OrderCode,
			Body:    fmt.Sprintf("Booking %s exhausted its refund attempts and needs a manual retry.", b.BookingID)})
	}
	return out, b.BookingID, nil
}

func withRefundNote(msg string, b events.Booking) string {
	if b.Amount == "" || b.Amount == "0.00" {
		return msg
	}
	return msg + " Any captured payment is refunded automatically, less gateway charges."
}

func (c *Consumer) withdrawal(key string, w events.Withdrawal) notifier.Message {
	subject := fmt.Sprintf("Withdrawal %s %s", w.WithdrawalID, w.Status)
	if key == events.RKWithdrawalRequested {
		subject = "New withdrawal request " + w.WithdrawalID
	}
	body := fmt.Sprintf("Expert %s: %s (%s)", w.ExpertID, w.Amount, w.Status)
	if w.Reference != "" {
		body += "\nReference: " + w.Reference
	}
	var to []string
	if c.opsEmail != "" {
		to = []string{c.opsEmail}
	}
	return notifier.Message{To: to, Subject: subject, Body: body}
}
