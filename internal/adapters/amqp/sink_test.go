package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satdigital/internal/ports"
)

type fakePublisher struct {
	exchange, key string
	msg           amqp091.Publishing
	err           error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestNotifyPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "sat.events", log.New(io.Discard, "", 0))
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	err := sink.Notify(context.Background(), ports.Notification{
		AuditID: "a1", EventType: ports.EventStateChanged, Recipients: []string{"user:aud-1"},
		Payload: map[string]any{"to_state": "closed"}, At: at,
	})
	require.NoError(t, err)

	assert.Equal(t, "sat.events", pub.exchange)
	assert.Equal(t, ports.EventStateChanged, pub.key)
	assert.Equal(t, amqp091.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, at, pub.msg.Timestamp)

	var got ports.Notification
	require.NoError(t, json.Unmarshal(pub.msg.Body, &got))
	assert.Equal(t, "a1", got.AuditID)
	assert.Equal(t, "closed", got.Payload["to_state"])
}

func TestNotifyWrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	sink := NewSink(pub, "sat.events", log.New(io.Discard, "", 0))
	err := sink.Notify(context.Background(), ports.Notification{AuditID: "a1", EventType: ports.EventStateChanged})
	assert.ErrorContains(t, err, "channel closed")
	assert.ErrorContains(t, err, "a1")
}
