package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tohomedistance/tohomedistance/internal/events"
	"github.com/tohomedistance/tohomedistance/internal/sensor"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := events.NewKafkaPublisherWithWriter(w)

	updatedAt := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), sensor.State{
		EntityID:   "sensor.phone_to_home",
		EntryID:    "ent_1",
		Value:      "1.23 km",
		Attributes: map[string]any{"duration": "9 分钟"},
		UpdatedAt:  updatedAt,
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "sensor.phone_to_home", string(w.msgs[0].Key))

	var got events.StateEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "1.23 km", got.State)
	assert.Equal(t, "ent_1", got.EntryID)
	assert.Equal(t, "9 分钟", got.Attributes["duration"])
	assert.True(t, updatedAt.Equal(got.UpdatedAt))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("no brokers")}
	p := events.NewKafkaPublisherWithWriter(w)

	err := p.Publish(context.Background(), sensor.State{EntityID: "sensor.x"})
	assert.ErrorContains(t, err, "sensor.x")
	assert.ErrorContains(t, err, "no brokers")
}
