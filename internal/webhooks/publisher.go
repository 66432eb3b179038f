package webhooks

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"fleetdesk/internal/events"
	"fleetdesk/internal/store"
)

// Publisher queues an outbound delivery per configured endpoint for every
// event whose type it subscribes to.
type Publisher struct {
	Queue  store.WebhookQueue
	URLs   []string
	Secret string
	Types  map[string]bool
	Log    logrus.FieldLogger
}

func NewPublisher(q store.WebhookQueue, urls []string, secret string, log logrus.FieldLogger, types ...string) *Publisher {
	if len(types) == 0 {
		types = []string{events.DispatchCommitted}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Publisher{Queue: q, URLs: urls, Secret: secret, Types: map[string]bool{}, Log: log}
	for _, t := range types {
		p.Types[t] = true
	}
	return p
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, evt events.Event) {
	if len(p.URLs) == 0 || !p.Types[evt.Type] {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return
	}
	for _, u := range p.URLs {
		if _, err := p.Queue.EnqueueWebhook(ctx, evt.Type, u, p.Secret, body); err != nil {
			p.Log.WithError(err).WithFields(logrus.Fields{"url": u, "type": evt.Type}).Error("webhook enqueue failed")
		}
	}
}
