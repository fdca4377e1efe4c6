package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

// Razorpay adapts the Razorpay SDK.
type Razorpay struct {
	client *razorpay.Client
}

// NewRazorpay builds the client. baseURL is the API root without the
// version segment; empty keeps the SDK default.
func NewRazorpay(baseURL, keyID, keySecret string) (*Razorpay, error) {
	if keyID == "" || keySecret == "" {
		return nil, errors.New("missing Razorpay key id or secret")
	}
	c := razorpay.NewClient(keyID, keySecret)
	if baseURL != "" {
		razorpay.Request.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Razorpay{client: c}, nil
}

func (r *Razorpay) CreateOrder(_ context.Context, in OrderRequest) (Order, error) {
	body, err := r.client.Order.Create(map[string]interface{}{
		"amount":   MinorUnits(in.Amount),
		"currency": in.Currency,
		"receipt":  in.Receipt,
		"notes":    in.Notes,
	}, nil)
	if err != nil {
		return Order{}, fmt.Errorf("razorpay create order: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return Order{}, errors.New("razorpay create order: response has no id")
	}
	return Order{ID: id}, nil
}

// Refund sends the idempotency key both as the refund receipt and as the
// X-Refund-Idempotency header so a retried call cannot refund twice.
func (r *Razorpay) Refund(_ context.Context, in RefundRequest) (Refund, error) {
	var headers map[string]string
	if in.IdempotencyKey != "" {
		headers = map[string]string{"X-Refund-Idempotency": in.IdempotencyKey}
	}
	body, err := r.client.Payment.Refund(in.PaymentID, int(MinorUnits(in.Amount)), map[string]interface{}{
		"speed":   "normal",
		"notes":   in.Notes,
		"receipt": in.IdempotencyKey,
	}, headers)
	if err != nil {
		return Refund{}, fmt.Errorf("razorpay refund %s: %w", in.PaymentID, err)
	}
	id, _ := body["id"].(string)
	status, _ := body["status"].(string)
	return Refund{ID: id, Status: status}, nil
}

// VerifyRazorpaySignature checks X-Razorpay-Signature against the raw body.
func VerifyRazorpaySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, secret)
}

// SignRazorpay produces the signature Razorpay sends, for tests and local tooling.
func SignRazorpay(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
