package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	_ "time/tzdata"

	"github.com/you/intella-booking/pkg/auth"
	"github.com/you/intella-booking/pkg/config"
	"github.com/you/intella-booking/pkg/obs"
	"github.com/you/intella-booking/services/booking-service/internal/app"
	httpx "github.com/you/intella-booking/services/booking-service/internal/http"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	cfg := must(config.Load())
	logger := obs.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := must(obs.InitTracer(ctx, cfg.ServiceName, cfg.Env, cfg.OTELExporterOTLPURL))
	defer func() { _ = shutdownTracer(context.Background()) }()

	svc := must(app.Build(ctx, cfg, logger))
	defer svc.Close()

	var omiseEvents httpx.OmiseEvents
	if svc.Omise != nil {
		omiseEvents = svc.Omise
	}
	router := httpx.NewRouter(httpx.RouterDeps{
		Verifier:   auth.NewVerifier(cfg.JWTSecret),
		CronSecret: cfg.CronSecret,
		Logger:     logger,
		Bookings:   httpx.NewBookingHandler(svc.Bookings, svc.Refunds, svc.Expiry),
		Money:      httpx.NewMoneyHandler(svc.Withdrawals, svc.Fees, svc.Refunds),
		Webhooks:   httpx.NewWebhookHandler(svc.Capture, cfg.RazorpayWebhookSecret, omiseEvents, logger),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	// gRPC health for the orchestrator
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	lis := must(net.Listen("tcp", cfg.GRPCHealthAddr))
	go func() {
		for {
			status := healthpb.HealthCheckResponse_SERVING
			if err := svc.Store.Ping(ctx); err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			hs.SetServingStatus("", status)
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Second):
			}
		}
	}()
	go func() {
		logger.Info("grpc health listening", "addr", cfg.GRPCHealthAddr)
		if err := gs.Serve(lis); err != nil {
			logger.Error("grpc health stopped", "error", err)
		}
	}()
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	gs.GracefulStop()
	logger.Info("stopped")
}
