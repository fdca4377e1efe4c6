package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Message is one relayed outbox row.
type Message struct {
	ID      string
	Type    string
	Key     string
	Payload []byte
}

type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, m Message) error {
	p.logger.InfoContext(ctx, "event published",
		"module", "events.publisher",
		"operation", "publish",
		"outcome", "success",
		"event_type", m.Type,
		"partition_key", m.Key,
		"payload_bytes", len(m.Payload),
	)
	return nil
}

// Route sends a message only to publishers whose prefix matches its type.
type Route struct {
	Prefixes  []string // empty matches everything
	Publisher Publisher
}

func (r Route) matches(eventType string) bool {
	if len(r.Prefixes) == 0 {
		return true
	}
	for _, p := range r.Prefixes {
		if strings.HasPrefix(eventType, p) {
			return true
		}
	}
	return false
}

// Fanout publishes to every matching route. A message counts as relayed
// only when all of them accept it; consumers dedupe on the message id.
type Fanout struct {
	routes []Route
}

func NewFanout(routes ...Route) *Fanout {
	return &Fanout{routes: routes}
}

func (f *Fanout) Publish(ctx context.Context, m Message) error {
	var errs []error
	for _, r := range f.routes {
		if !r.matches(m.Type) {
			continue
		}
		if err := r.Publisher.Publish(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
