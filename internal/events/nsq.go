package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"
)

const DefaultTopic = "dispatch-events"

type nsqProducer interface {
	Publish(topic string, body []byte) error
	Stop()
}

// NSQSink forwards selected event types to an nsqd topic.
type NSQSink struct {
	producer nsqProducer
	topic    string
	types    map[string]bool
	log      logrus.FieldLogger
}

// NewNSQSink connects to nsqd. With no types every event is forwarded.
func NewNSQSink(addr, topic string, log logrus.FieldLogger, types ...string) (*NSQSink, error) {
	p, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("events.NewNSQSink: %w", err)
	}
	if err := p.Ping(); err != nil {
		p.Stop()
		return nil, fmt.Errorf("events.NewNSQSink: ping %s: %w", addr, err)
	}
	return newNSQSink(p, topic, log, types...), nil
}

func newNSQSink(p nsqProducer, topic string, log logrus.FieldLogger, types ...string) *NSQSink {
	if topic == "" {
		topic = DefaultTopic
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &NSQSink{producer: p, topic: topic, log: log}
	if len(types) > 0 {
		s.types = map[string]bool{}
		for _, t := range types {
			s.types[t] = true
		}
	}
	return s
}

func (s *NSQSink) Publish(_ context.Context, evt Event) {
	if s.types != nil && !s.types[evt.Type] {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := s.producer.Publish(s.topic, body); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"topic": s.topic, "type": evt.Type}).Error("nsq publish failed")
	}
}

func (s *NSQSink) Close() { s.producer.Stop() }
