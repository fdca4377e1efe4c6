package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Request struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Room        string
}

// Scheduler creates the external meeting resource for an accepted booking.
type Scheduler interface {
	CreateMeetingEvent(ctx context.Context, in Request) (string, error)
}

// LinkScheduler issues deterministic room links on a hosted meeting service.
type LinkScheduler struct {
	base *url.URL
}

func NewLinkScheduler(baseURL string) (*LinkScheduler, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse meeting base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("meeting base url must be absolute")
	}
	return &LinkScheduler{base: u}, nil
}

func (s *LinkScheduler) CreateMeetingEvent(ctx context.Context, in Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if in.Room == "" {
		return "", errors.New("meeting room is required")
	}
	if !in.End.After(in.Start) {
		return "", errors.New("meeting end must be after start")
	}
	u := *s.base
	u.Path = u.Path + "/" + url.PathEscape(in.Room)
	return u.String(), nil
}
