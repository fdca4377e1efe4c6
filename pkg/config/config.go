package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type App struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"booking-service"`
	Env         string `envconfig:"ENV" default:"dev"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// DB
	DBDriver   string `envconfig:"DB_DRIVER" default:"postgres"` // postgres|sqlite
	DBDSN      string `envconfig:"DB_DSN" required:"true"`
	DBMaxConns int    `envconfig:"DB_MAX_CONNS" default:"20"`

	// JWT (issued by the auth provider)
	JWTSecret  string `envconfig:"JWT_SECRET" required:"true"`
	CronSecret string `envconfig:"CRON_SECRET"`

	// Network
	HTTPAddr       string `envconfig:"BOOKING_HTTP_ADDR" default:":8080"`
	GRPCHealthAddr string `envconfig:"BOOKING_GRPC_HEALTH_ADDR" default:":50053"`

	// Payment gateway
	GatewayProvider       string `envconfig:"GATEWAY_PROVIDER" default:"razorpay"` // razorpay|omise
	RazorpayBaseURL       string `envconfig:"RAZORPAY_BASE_URL" default:"https://api.razorpay.com"`
	RazorpayKeyID         string `envconfig:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret     string `envconfig:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string `envconfig:"RAZORPAY_WEBHOOK_SECRET"`
	OmisePub              string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSec              string `envconfig:"OMISE_SECRET_KEY"`
	OmiseSourceType       string `envconfig:"OMISE_SOURCE_TYPE" default:"promptpay"`
	Currency              string `envconfig:"CURRENCY" default:"INR"`

	// Scheduling
	TimeZone       string        `envconfig:"BOOKING_TIMEZONE" default:"Asia/Kolkata"`
	MeetingBaseURL string        `envconfig:"MEETING_BASE_URL" default:"https://meet.jit.si"`
	NoShowGrace    time.Duration `envconfig:"NO_SHOW_GRACE" default:"15m"`
	SnowflakeNode  int64         `envconfig:"SNOWFLAKE_NODE" default:"1"`

	// Messaging
	RabbitURL       string   `envconfig:"RABBIT_URL"`
	BookingExchange string   `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`
	RefundQueue     string   `envconfig:"BOOKING_REFUND_QUEUE" default:"booking.refund.q"`
	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic      string   `envconfig:"KAFKA_LEDGER_TOPIC" default:"booking.financial.v1"`

	// Redis
	RedisURL string `envconfig:"REDIS_URL"`

	// Workers
	OutboxInterval      time.Duration `envconfig:"OUTBOX_INTERVAL" default:"2s"`
	OutboxBatch         int           `envconfig:"OUTBOX_BATCH" default:"100"`
	RefundInterval      time.Duration `envconfig:"REFUND_INTERVAL" default:"5s"`
	RefundBatch         int           `envconfig:"REFUND_BATCH" default:"20"`
	RefundMaxAttempts   int           `envconfig:"REFUND_MAX_ATTEMPTS" default:"6"`
	RefundBackoffBase   time.Duration `envconfig:"REFUND_BACKOFF_BASE" default:"30s"`
	RefundBackoffMax    time.Duration `envconfig:"REFUND_BACKOFF_MAX" default:"1h"`
	ExpiryInterval      time.Duration `envconfig:"EXPIRY_INTERVAL" default:"1m"`
	ExpiryLockTTL       time.Duration `envconfig:"EXPIRY_LOCK_TTL" default:"50s"`
	OTELExporterOTLPURL string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads .env (if any) and then the process environment.
func Load() (App, error) {
	_ = godotenv.Load()
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
