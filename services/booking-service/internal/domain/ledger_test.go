package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCaptureEntriesBalance(t *testing.T) {
	b := &Booking{ID: "b1", OrderCode: "ORD-1", Amount: d("1000")}
	f := ComputeFees(d("1000"), d("23.6"), cfg("5", "20"))
	rows := CaptureEntries(b, f, time.Now())
	require.Len(t, rows, 4)

	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Signed())
	}
	require.True(t, sum.IsZero(), sum.String())
}

func TestReversalPairsNetToZero(t *testing.T) {
	b := &Booking{ID: "b1", OrderCode: "ORD-1", Amount: d("500")}
	f := ComputeFees(d("500"), d("10"), cfg("5", "20"))
	b.PGFee, b.IntellaFee, b.ExpertEarning = f.GatewayFee, f.PlatformFee, f.ExpertEarning

	byType := map[EntryType]decimal.Decimal{}
	for _, r := range append(CaptureEntries(b, f, time.Now()), ReversalEntries(b, time.Now())...) {
		byType[r.EntryType] = byType[r.EntryType].Add(r.Signed())
	}
	for rev, orig := range ReversalOf {
		require.True(t, byType[rev].Add(byType[orig]).IsZero(), "%s/%s", rev, orig)
	}

	// the payer gets gross minus the gateway fee back
	paid := ReversalEntries(b, time.Now())
	require.True(t, paid[0].Amount.Sub(paid[1].Amount).Equal(d("490")))
}
