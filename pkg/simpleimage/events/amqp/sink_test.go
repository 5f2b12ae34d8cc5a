package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakePublisher struct {
	sent []published
	err  error
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestSink_PublishesEvents(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewWithPublisher(pub, "")
	fixed := time.Date(2024, 10, 29, 9, 50, 54, 0, time.UTC)
	sink.now = func() time.Time { return fixed }

	asset := &simpleimage.Asset{ID: 3, Name: "cat.jpg", Key: simpleimage.MustParseBlobKey("compressed_cat.jpg")}
	ctx := context.Background()

	require.NoError(t, sink.AssetIngested(ctx, asset))
	require.NoError(t, sink.AssetRemoved(ctx, asset))
	require.Len(t, pub.sent, 2)

	first := pub.sent[0]
	assert.Equal(t, DefaultExchange, first.exchange)
	assert.Equal(t, RoutingIngested, first.key)
	assert.Equal(t, "application/json", first.msg.ContentType)
	assert.Equal(t, amqp.Persistent, first.msg.DeliveryMode)
	_, err := uuid.Parse(first.msg.MessageId)
	assert.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(first.msg.Body, &event))
	assert.Equal(t, Event{
		Type:       RoutingIngested,
		ID:         3,
		Name:       "cat.jpg",
		Key:        "compressed_cat.jpg",
		OccurredAt: fixed,
	}, event)

	assert.Equal(t, RoutingRemoved, pub.sent[1].key)
	assert.NotEqual(t, first.msg.MessageId, pub.sent[1].msg.MessageId)
}

func TestSink_PropagatesPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	sink := NewWithPublisher(pub, "custom")

	err := sink.AssetIngested(context.Background(), &simpleimage.Asset{ID: 1, Key: "k"})
	assert.EqualError(t, err, "channel closed")
}

func TestDial_RequiresURL(t *testing.T) {
	_, err := Dial("", "")
	assert.Error(t, err)
}
