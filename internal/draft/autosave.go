package draft

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fleetdesk/internal/metrics"
	"fleetdesk/internal/model"
)

// Autosaver writes drafts in the background. Only the newest snapshot per
// request is kept; a failed write is not retried, the next Enqueue is.
type Autosaver struct {
	store   *Store
	log     logrus.FieldLogger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]model.DispatchDraft
	closed  bool

	saveMu sync.Mutex // held while writing or discarding
	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func NewAutosaver(s *Store, log logrus.FieldLogger) *Autosaver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &Autosaver{
		store:   s,
		log:     log,
		timeout: 5 * time.Second,
		pending: map[string]model.DispatchDraft{},
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Enqueue records a snapshot and returns immediately.
func (a *Autosaver) Enqueue(d model.DispatchDraft) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.pending[d.RequestID] = d
	a.mu.Unlock()
	select {
	case a.signal <- struct{}{}:
	default:
	}
}

// Discard drops any pending snapshot and deletes the stored draft. Writes in
// flight finish first so a superseded draft cannot reappear.
func (a *Autosaver) Discard(ctx context.Context, requestID string) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	a.mu.Lock()
	delete(a.pending, requestID)
	a.mu.Unlock()
	return a.store.Discard(ctx, requestID)
}

// Flush writes every pending snapshot before returning.
func (a *Autosaver) Flush() {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	a.mu.Lock()
	batch := a.pending
	a.pending = map[string]model.DispatchDraft{}
	a.mu.Unlock()
	for id, d := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.store.SaveDraft(ctx, d)
		cancel()
		metrics.DraftSaves.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			a.log.WithError(err).WithField("request_id", id).Warn("draft autosave failed")
		}
	}
}

// Close stops accepting snapshots and drains the ones already queued.
func (a *Autosaver) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()
	close(a.stop)
	<-a.done
}

func (a *Autosaver) run() {
	defer close(a.done)
	for {
		select {
		case <-a.signal:
			a.Flush()
		case <-a.stop:
			a.Flush()
			return
		}
	}
}
