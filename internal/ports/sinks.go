package ports

import (
	"context"
	"time"

	"satdigital/internal/domain"
)

const EventStateChanged = "audit.state_changed"

type Notification struct {
	AuditID    string         `json:"audit_id"`
	EventType  string         `json:"event_type"`
	Recipients []string       `json:"recipients"`
	Payload    map[string]any `json:"payload"`
	At         time.Time      `json:"at"`
}

// NotificationSink delivers workflow events to users.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// AuditTrailSink writes bitácora entries.
type AuditTrailSink interface {
	RecordTrail(ctx context.Context, e domain.TrailEntry) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T. Tests move it by assigning T.
type FixedClock struct{ T time.Time }

func (c *FixedClock) Now() time.Time { return c.T }
