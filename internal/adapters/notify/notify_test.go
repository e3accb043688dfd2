package notify

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"satdigital/internal/ports"
)

type sinkFunc func(context.Context, ports.Notification) error

func (f sinkFunc) Notify(ctx context.Context, n ports.Notification) error { return f(ctx, n) }

func TestFanOutDeliversToAll(t *testing.T) {
	var buf bytes.Buffer
	delivered := 0
	failing := sinkFunc(func(context.Context, ports.Notification) error { return errors.New("broker down") })
	counting := sinkFunc(func(context.Context, ports.Notification) error { delivered++; return nil })

	fan := FanOut{failing, NewLogSink(log.New(&buf, "", 0)), nil, counting}
	err := fan.Notify(context.Background(), ports.Notification{
		AuditID: "a1", EventType: ports.EventStateChanged, Recipients: []string{"user:aud-1", "provider:p1"},
		Payload: map[string]any{"from_state": "uploading", "to_state": "pending_evaluation"},
	})

	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, 1, delivered)
	assert.Contains(t, buf.String(), "audit=a1 to=[user:aud-1,provider:p1] uploading -> pending_evaluation")
}

func TestEmptyFanOut(t *testing.T) {
	assert.NoError(t, FanOut{}.Notify(context.Background(), ports.Notification{}))
}
