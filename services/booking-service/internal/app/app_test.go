package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/you/intella-booking/pkg/config"
	"github.com/you/intella-booking/services/booking-service/internal/domain"
)

func testConfig(t *testing.T) config.App {
	return config.App{
		ServiceName:       "booking-service",
		DBDriver:          "sqlite",
		DBDSN:             filepath.Join(t.TempDir(), "booking.db"),
		GatewayProvider:   "razorpay",
		RazorpayKeyID:     "rzp_test",
		RazorpayKeySecret: "secret",
		Currency:          "INR",
		TimeZone:          "UTC",
		MeetingBaseURL:    "https://meet.example.com",
		SnowflakeNode:     1,
	}
}

func TestBuildAndClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Build(context.Background(), testConfig(t), logger)
	require.NoError(t, err)

	_, err = s.Store.Bookings.ByID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	s.Close()
	_, err = s.Store.Bookings.ByID(context.Background(), "missing")
	require.ErrorContains(t, err, "database is closed")
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.GatewayProvider = "paypal"
	_, err := Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.ErrorContains(t, err, `unknown gateway provider "paypal"`)
}
