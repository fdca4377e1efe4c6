package domain

import "fmt"

type Event string

const (
	EventPaymentCaptured Event = "payment_captured"
	EventPaymentFailed   Event = "payment_failed"
	EventFreeConfirmed   Event = "free_confirmed"
	EventHostAccept      Event = "host_accept"
	EventHostReject      Event = "host_reject"
	EventUserCancel      Event = "user_cancel"
	EventExpire          Event = "expire"
	EventHostCancel      Event = "host_cancel"
	EventExpertNoShow    Event = "expert_no_show"
)

// Transition is one edge of the booking lifecycle.
type Transition struct {
	Event Event
	From  Status
	To    Status
	// By is set on negative terminal edges and lands in rejected_by or cancelled_by.
	By Actor
	// Payment is the payment_status the booking must hold before the edge fires.
	Payment PaymentStatus
	Refunds bool
}

var transitions = map[Event]Transition{
	EventPaymentCaptured: {Event: EventPaymentCaptured, From: StatusPendingConfirmation, To: StatusPendingConfirmation, Payment: PaymentUnpaid},
	EventPaymentFailed:   {Event: EventPaymentFailed, From: StatusPendingConfirmation, To: StatusCancelled, By: ActorSystem, Payment: PaymentUnpaid},
	EventFreeConfirmed:   {Event: EventFreeConfirmed, From: StatusPendingConfirmation, To: StatusPendingConfirmation, Payment: PaymentConfirmed},
	EventHostAccept:      {Event: EventHostAccept, From: StatusPendingConfirmation, To: StatusConfirmed, Payment: PaymentConfirmed},
	EventHostReject:      {Event: EventHostReject, From: StatusPendingConfirmation, To: StatusRejected, By: ActorHost, Refunds: true},
	EventUserCancel:      {Event: EventUserCancel, From: StatusPendingConfirmation, To: StatusCancelled, By: ActorUser, Refunds: true},
	EventExpire:          {Event: EventExpire, From: StatusPendingConfirmation, To: StatusRejected, By: ActorSystem, Refunds: true},
	EventHostCancel:      {Event: EventHostCancel, From: StatusConfirmed, To: StatusCancelled, By: ActorHost, Refunds: true},
	EventExpertNoShow:    {Event: EventExpertNoShow, From: StatusConfirmed, To: StatusCancelled, By: ActorSystem, Refunds: true},
}

// Plan returns the edge for an event.
func Plan(ev Event) (Transition, error) {
	t, ok := transitions[ev]
	if !ok {
		return Transition{}, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
	}
	return t, nil
}

// CanTransition reports whether any event moves a booking from one status to another.
func CanTransition(from, to Status) bool {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Expected is the state a guarded write requires the row to still hold.
// An empty Payment matches any payment status.
type Expected struct {
	Status  Status
	Payment PaymentStatus
}

func (t Transition) Expected() Expected {
	return Expected{Status: t.From, Payment: t.Payment}
}

// Check validates the edge against an in-memory snapshot. The database
// guard remains authoritative; this only produces a precise error early.
func (t Transition) Check(b *Booking) error {
	if b.Status != t.From {
		return fmt.Errorf("%w: %s requires status %s, booking is %s", ErrPreconditionFailed, t.Event, t.From, b.Status)
	}
	if t.Payment != "" && b.PaymentStatus != t.Payment {
		return fmt.Errorf("%w: %s requires payment %s, booking has %s", ErrPreconditionFailed, t.Event, t.Payment, b.PaymentStatus)
	}
	return nil
}

// Updates returns the column changes the edge itself implies.
func (t Transition) Updates() map[string]any {
	u := map[string]any{}
	if t.To != t.From {
		u["status"] = t.To
	}
	switch {
	case t.By == "":
	case t.To == StatusRejected:
		u["rejected_by"] = t.By
	case t.To == StatusCancelled:
		u["cancelled_by"] = t.By
	}
	return u
}
