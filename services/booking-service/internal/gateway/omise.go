package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// Omise adapts the Omise SDK.
type Omise struct {
	omc        *omise.Client
	sourceType string
}

func NewOmise(pub, sec, sourceType string) (*Omise, error) {
	c, err := omise.NewClient(pub, sec)
	if err != nil {
		return nil, err
	}
	if sourceType == "" {
		sourceType = "promptpay"
	}
	return &Omise{omc: c, sourceType: sourceType}, nil
}

// CreateOrder creates a payment source and a charge against it. The charge
// id is the order id; its metadata links the webhook back to the booking.
func (o *Omise) CreateOrder(_ context.Context, in OrderRequest) (Order, error) {
	src := &omise.Source{}
	if err := o.omc.Do(src, &operations.CreateSource{
		Type:     o.sourceType,
		Amount:   MinorUnits(in.Amount),
		Currency: in.Currency,
	}); err != nil {
		return Order{}, fmt.Errorf("omise create source: %w", err)
	}
	ch := &omise.Charge{}
	if err := o.omc.Do(ch, chargeFromSource(in, src.ID)); err != nil {
		return Order{}, fmt.Errorf("omise create charge: %w", err)
	}
	return Order{ID: ch.ID}, nil
}

func chargeFromSource(in OrderRequest, sourceID string) *operations.CreateCharge {
	meta := map[string]any{"receipt": in.Receipt}
	for k, v := range in.Notes {
		meta[k] = v
	}
	return &operations.CreateCharge{
		Amount:   MinorUnits(in.Amount),
		Currency: in.Currency,
		Source:   sourceID,
		Metadata: meta,
	}
}

// Refund issues at most one refund per idempotency key. Omise has no
// idempotency header, so the key travels in the refund metadata and the
// charge's existing refunds are checked first.
func (o *Omise) Refund(_ context.Context, in RefundRequest) (Refund, error) {
	if in.IdempotencyKey != "" {
		list := &omise.RefundList{}
		if err := o.omc.Do(list, &operations.ListRefunds{ChargeID: in.PaymentID}); err != nil {
			return Refund{}, fmt.Errorf("omise list refunds: %w", err)
		}
		for _, r := range list.Data {
			if k, _ := r.Metadata["idempotency_key"].(string); k == in.IdempotencyKey {
				return Refund{ID: r.ID, Status: "processed"}, nil
			}
		}
	}
	meta := map[string]any{}
	for k, v := range in.Notes {
		meta[k] = v
	}
	if in.IdempotencyKey != "" {
		meta["idempotency_key"] = in.IdempotencyKey
	}
	ref := &omise.Refund{}
	if err := o.omc.Do(ref, &operations.CreateRefund{
		ChargeID: in.PaymentID,
		Amount:   MinorUnits(in.Amount),
		Metadata: meta,
	}); err != nil {
		return Refund{}, fmt.Errorf("omise create refund: %w", err)
	}
	return Refund{ID: ref.ID, Status: "processed"}, nil
}

// OmiseCharge is the subset of a charge the capture flow reads.
type OmiseCharge struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	Amount         int64          `json:"amount"`
	Fee            int64          `json:"fee"`
	FeeVat         int64          `json:"fee_vat"`
	FailureCode    *string        `json:"failure_code"`
	FailureMessage *string        `json:"failure_message"`
	Metadata       map[string]any `json:"metadata"`
}

type OmiseEvent struct {
	ID     string
	Key    string
	Charge *OmiseCharge
}

// RetrieveEvent re-fetches a webhook event from Omise so the payload can be trusted.
func (o *Omise) RetrieveEvent(_ context.Context, eventID string) (*OmiseEvent, error) {
	ev := &omise.Event{}
	if err := o.omc.Do(ev, &operations.RetrieveEvent{EventID: eventID}); err != nil {
		return nil, fmt.Errorf("omise retrieve event: %w", err)
	}
	out := &OmiseEvent{ID: ev.ID, Key: ev.Key}
	if ev.Key != "charge.complete" {
		return out, nil
	}
	// ev.Data is an untyped map; round-trip it into the charge shape
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	var ch OmiseCharge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("unmarshal charge: %w", err)
	}
	out.Charge = &ch
	return out, nil
}
