package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"

	_ "time/tzdata"

	"github.com/you/intella-booking/pkg/config"
	"github.com/you/intella-booking/pkg/mq"
	"github.com/you/intella-booking/pkg/obs"
	"github.com/you/intella-booking/services/booking-service/internal/app"
	"github.com/you/intella-booking/services/booking-service/internal/domain"
	"github.com/you/intella-booking/services/booking-service/internal/events"
	"github.com/you/intella-booking/services/booking-service/internal/worker"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

// financial events also go to the ledger topic
var financialPrefixes = []string{"booking.payment_", "booking.refund_", "withdrawal."}

func main() {
	cfg := must(config.Load())
	logger := obs.NewLogger(cfg.ServiceName+"-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := must(obs.InitTracer(ctx, cfg.ServiceName+"-worker", cfg.Env, cfg.OTELExporterOTLPURL))
	defer func() { _ = shutdownTracer(context.Background()) }()

	svc := must(app.Build(ctx, cfg, logger))
	defer svc.Close()

	routes := []events.Route{}
	if cfg.RabbitURL != "" {
		pub := must(mq.NewPublisher(cfg.RabbitURL, cfg.BookingExchange))
		defer pub.Close()
		routes = append(routes, events.Route{Publisher: events.NewRabbitPublisher(pub)})
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := must(events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer kp.Close()
		routes = append(routes, events.Route{Prefixes: financialPrefixes, Publisher: kp})
	}
	if len(routes) == 0 {
		logger.Warn("no broker configured, outbox events are only logged")
		routes = append(routes, events.Route{Publisher: events.NewLoggingPublisher(logger)})
	}

	runners := map[string]func(context.Context) error{
		"outbox":  worker.NewOutboxRelay(svc.Store, events.NewFanout(routes...), logger, cfg.OutboxInterval, cfg.OutboxBatch).Run,
		"refunds": worker.NewRefundQueue(svc.Expiry, logger, cfg.RefundInterval, cfg.RefundBatch).Run,
		"expiry":  worker.NewExpiryScheduler(svc.Expiry, logger, cfg.ExpiryInterval).Run,
	}
	if cfg.RabbitURL != "" {
		cons := must(mq.NewConsumer(mq.ConsumerConfig{
			URL:       cfg.RabbitURL,
			Exchanges: []string{cfg.BookingExchange},
			Queue:     cfg.RefundQueue,
			Bindings:  []string{domain.RKRefundRequested},
			Prefetch:  4,
			DLXName:   cfg.BookingExchange + ".dlx",
			DLXQueue:  cfg.RefundQueue + ".dlq",
			Tag:       "booking-refund-worker",
		}, logger))
		defer cons.Close()
		rc := worker.NewRefundConsumer(svc.Refunds, logger)
		runners["refund-consumer"] = func(ctx context.Context) error { return cons.Run(ctx, rc.Handle) }
	}

	var wg sync.WaitGroup
	for name, run := range runners {
		wg.Add(1)
		go func(name string, run func(context.Context) error) {
			defer wg.Done()
			logger.Info("worker started", "worker", name)
			if err := run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("worker exited", "worker", name, "error", err)
				stop()
			}
		}(name, run)
	}
	wg.Wait()
	logger.Info("stopped")
}
