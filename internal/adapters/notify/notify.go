// Package notify holds the in-process notification sinks.
package notify

import (
	"context"
	"errors"
	"log"
	"strings"

	"satdigital/internal/ports"
)

// LogSink writes one line per notification.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, n ports.Notification) error {
	s.logger.Printf("notify %s audit=%s to=[%s] %s -> %s",
		n.EventType, n.AuditID, strings.Join(n.Recipients, ","), n.Payload["from_state"], n.Payload["to_state"])
	return nil
}

// FanOut delivers to every sink and joins their errors. A failing sink does
// not stop delivery to the others.
type FanOut []ports.NotificationSink

func (f FanOut) Notify(ctx context.Context, n ports.Notification) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
