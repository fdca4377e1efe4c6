package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	_ "time/tzdata"

	"github.com/you/intella-booking/pkg/db"
	"github.com/you/intella-booking/pkg/mq"
	"github.com/you/intella-booking/pkg/obs"
	"github.com/you/intella-booking/services/notification-service/internal/delivery"
	"github.com/you/intella-booking/services/notification-service/internal/notifier"
	"github.com/you/intella-booking/services/notification-service/internal/worker"
)

type Cfg struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	RabbitURL string   `envconfig:"RABBIT_URL" required:"true"`
	Exchanges []string `envconfig:"NOTIFY_EXCHANGES" default:"booking.exchange"`
	Queue     string   `envconfig:"NOTIFY_QUEUE" default:"notification.q"`
	DLXName   string   `envconfig:"NOTIFY_DLX" default:"notification.dlx"`
	DLXQueue  string   `envconfig:"NOTIFY_DLQ" default:"notification.q.dlq"`
	Prefetch  int      `envconfig:"NOTIFY_PREFETCH" default:"16"`

	// delivery log
	DBDriver string `envconfig:"DB_DRIVER" default:"postgres"`
	DBDSN    string `envconfig:"NOTIFY_DB_DSN" required:"true"`

	// empty SMTP_ADDR logs to the console
	SMTPAddr     string `envconfig:"SMTP_ADDR"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"Intella <no-reply@intella.local>"`
	OpsEmail     string `envconfig:"NOTIFY_OPS_EMAIL"`
	TimeZone     string `envconfig:"BOOKING_TIMEZONE" default:"Asia/Kolkata"`
}

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	_ = godotenv.Load()
	var cfg Cfg
	must(0, envconfig.Process("", &cfg))
	logger := obs.NewLogger("notification-service", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb := must(db.Open(ctx, cfg.DBDriver, cfg.DBDSN, 4))
	deliveries := delivery.NewLog(gdb)
	must(0, deliveries.Migrate())

	var n notifier.Notifier = notifier.NewConsole(logger)
	if cfg.SMTPAddr != "" {
		n = notifier.NewSMTP(notifier.SMTPConfig{
			Addr: cfg.SMTPAddr, Username: cfg.SMTPUsername, Password: cfg.SMTPPassword, From: cfg.SMTPFrom,
		})
	}
	loc := must(time.LoadLocation(cfg.TimeZone))
	handler := worker.NewConsumer(n, deliveries, loc, cfg.OpsEmail, logger)

	var cons *mq.Consumer
	for {
		var err error
		cons, err = mq.NewConsumer(mq.ConsumerConfig{
			URL:       cfg.RabbitURL,
			Exchanges: cfg.Exchanges,
			Queue:     cfg.Queue,
			Bindings:  worker.Bindings,
			Prefetch:  cfg.Prefetch,
			DLXName:   cfg.DLXName,
			DLXQueue:  cfg.DLXQueue,
			Tag:       "notification-service",
		}, logger)
		if err == nil {
			break
		}
		logger.Warn("rabbitmq connect failed, retrying", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
	defer cons.Close()

	logger.Info("started", "queue", cfg.Queue, "exchanges", cfg.Exchanges, "bindings", worker.Bindings)
	if err := cons.Run(ctx, handler.Handle); err != nil {
		logger.Error("consumer stopped", "error", err)
	}
}
