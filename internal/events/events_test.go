package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_PublishSubscribe(t *testing.T) {
	b := NewMemoryBroker()
	ch := b.Subscribe("r1")
	other := b.Subscribe("r2")

	b.Publish(context.Background(), New(VehicleAssigned, "r1", map[string]any{"vehicleId": "v1"}))

	select {
	case evt := <-ch:
		assert.Equal(t, VehicleAssigned, evt.Type)
		assert.Equal(t, "v1", evt.Data["vehicleId"])
	default:
		t.Fatal("expected event")
	}
	assert.Len(t, other, 0)

	b.Unsubscribe("r1", ch)
	b.Unsubscribe("r1", ch)
	_, open := <-ch
	assert.False(t, open)
	b.Publish(context.Background(), New(VehicleAssigned, "r1", nil))
}

func TestMemoryBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewMemoryBroker()
	ch := b.Subscribe("r1")
	for i := 0; i < 100; i++ {
		b.Publish(context.Background(), New(VehicleAdded, "r1", nil))
	}
	assert.Len(t, ch, cap(ch))
}

func TestRedisBroker_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	b := NewRedisBroker(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)

	ch := b.Subscribe("r1")
	defer b.Unsubscribe("r1", ch)
	b.Publish(context.Background(), New(DispatchCommitted, "r1", nil))

	select {
	case evt := <-ch:
		assert.Equal(t, DispatchCommitted, evt.Type)
		assert.Equal(t, "r1", evt.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redis event")
	}
}

type fakeProducer struct {
	topics []string
	bodies [][]byte
	err    error
}

func (f *fakeProducer) Publish(topic string, body []byte) error {
	f.topics = append(f.topics, topic)
	f.bodies = append(f.bodies, body)
	return f.err
}

func (f *fakeProducer) Stop() {}

func TestNSQSink_FiltersByType(t *testing.T) {
	p := &fakeProducer{}
	s := newNSQSink(p, "", nil, DispatchCommitted)

	s.Publish(context.Background(), New(VehicleAssigned, "r1", nil))
	s.Publish(context.Background(), New(DispatchCommitted, "r1", map[string]any{"vehicles": 2}))

	require.Len(t, p.bodies, 1)
	assert.Equal(t, DefaultTopic, p.topics[0])
	var evt Event
	require.NoError(t, json.Unmarshal(p.bodies[0], &evt))
	assert.Equal(t, DispatchCommitted, evt.Type)
	assert.EqualValues(t, 2, evt.Data["vehicles"])
}

func TestNSQSink_PublishErrorIsSwallowed(t *testing.T) {
	p := &fakeProducer{err: errors.New("nsqd down")}
	s := newNSQSink(p, "t", nil)
	assert.NotPanics(t, func() { s.Publish(context.Background(), New(DispatchCancelled, "r1", nil)) })
	assert.Len(t, p.bodies, 1)
}

func TestFanout(t *testing.T) {
	a, b := NewMemoryBroker(), NewMemoryBroker()
	ca, cb := a.Subscribe("r"), b.Subscribe("r")
	Fanout{a, nil, b, Discard}.Publish(context.Background(), New(VehicleRemoved, "r", nil))
	assert.Len(t, ca, 1)
	assert.Len(t, cb, 1)
}
