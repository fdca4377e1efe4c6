package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	require.EqualValues(t, 100000, MinorUnits(decimal.NewFromInt(1000)))
	require.EqualValues(t, 2360, MinorUnits(decimal.RequireFromString("23.6")))
	require.True(t, FromMinor(49000).Equal(decimal.NewFromInt(490)))
}

func TestRazorpaySignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := SignRazorpay(body, "whsec")
	require.True(t, VerifyRazorpaySignature(body, sig, "whsec"))
	require.False(t, VerifyRazorpaySignature(body, sig, "other"))
	require.False(t, VerifyRazorpaySignature(body, "", "whsec"))
}

func TestRazorpayRefund(t *testing.T) {
	var gotPath, gotUser, gotIdem string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		gotIdem = r.Header.Get("X-Refund-Idempotency")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"rfnd_1","status":"processed"}`))
	}))
	defer srv.Close()

	rp, err := NewRazorpay(srv.URL, "key", "secret")
	require.NoError(t, err)
	ref, err := rp.Refund(context.Background(), RefundRequest{
		PaymentID: "pay_1", Amount: decimal.NewFromInt(490), IdempotencyKey: "b1",
		Notes: map[string]string{"reason": "host_rejected"},
	})
	require.NoError(t, err)
	require.Equal(t, "rfnd_1", ref.ID)
	require.Equal(t, "/v1/payments/pay_1/refund", gotPath)
	require.Equal(t, "key", gotUser)
	require.Equal(t, "b1", gotIdem)
	require.EqualValues(t, 49000, gotBody["amount"])
}

func TestRazorpayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR"}}`))
	}))
	defer srv.Close()

	rp, err := NewRazorpay(srv.URL, "key", "secret")
	require.NoError(t, err)
	_, err = rp.CreateOrder(context.Background(), OrderRequest{Amount: decimal.NewFromInt(10), Currency: "INR", Receipt: "ORD-1"})
	require.Error(t, err)
}

func TestNewRazorpayRequiresKeys(t *testing.T) {
	_, err := NewRazorpay("http://x", "", "")
	require.Error(t, err)
}

func newOmiseAt(t *testing.T, h http.Handler) *Omise {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	o, err := NewOmise("pkey_test_1", "skey_test_1", "")
	require.NoError(t, err)
	o.omc.Endpoints["https://api.omise.co"] = srv.URL
	return o
}

func TestOmiseOrderChargesSourceWithBookingMetadata(t *testing.T) {
	var charge map[string]any
	o := newOmiseAt(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sources":
			_, _ = w.Write([]byte(`{"object":"source","id":"src_1"}`))
		case "/charges":
			_ = json.NewDecoder(r.Body).Decode(&charge)
			_, _ = w.Write([]byte(`{"object":"charge","id":"chrg_1","status":"pending"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"object":"error","code":"not_found"}`))
		}
	}))

	order, err := o.CreateOrder(context.Background(), OrderRequest{
		Amount: decimal.NewFromInt(500), Currency: "THB", Receipt: "ORD-1",
		Notes: map[string]string{"booking_id": "b-1", "order_code": "ORD-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "chrg_1", order.ID)
	require.Equal(t, "src_1", charge["source"])
	require.EqualValues(t, 50000, charge["amount"])
	meta, _ := charge["metadata"].(map[string]any)
	require.Equal(t, "b-1", meta["booking_id"])
	require.Equal(t, "ORD-1", meta["order_code"])
}

func TestOmiseRefundReusesRefundWithSameKey(t *testing.T) {
	created := 0
	o := newOmiseAt(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/charges/chrg_1/refunds", r.URL.Path)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"refund","id":"rfnd_old","metadata":{"idempotency_key":"refund-b1"}}]}`))
			return
		}
		created++
		_, _ = w.Write([]byte(`{"object":"refund","id":"rfnd_new"}`))
	}))

	ref, err := o.Refund(context.Background(), RefundRequest{PaymentID: "chrg_1", Amount: decimal.NewFromInt(490), IdempotencyKey: "refund-b1"})
	require.NoError(t, err)
	require.Equal(t, "rfnd_old", ref.ID)
	require.Zero(t, created)

	ref, err = o.Refund(context.Background(), RefundRequest{PaymentID: "chrg_1", Amount: decimal.NewFromInt(490), IdempotencyKey: "refund-b2"})
	require.NoError(t, err)
	require.Equal(t, "rfnd_new", ref.ID)
	require.Equal(t, 1, created)
}
