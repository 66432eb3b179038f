package draft

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdesk/internal/model"
)

// flakyKV wraps MemoryKV, failing Set while fail is true and counting writes.
type flakyKV struct {
	*MemoryKV
	mu   sync.Mutex
	fail bool
	sets int
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	f.sets++
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func snapshot(requestID string, n int) model.DispatchDraft {
	return Snapshot(requestID, vehicles(), n)
}

func TestAutosaver_LatestWins(t *testing.T) {
	kv := &flakyKV{MemoryKV: NewMemoryKV()}
	s := NewStore(kv, "", nil)
	a := NewAutosaver(s, nil)

	a.Enqueue(snapshot("r1", 1))
	a.Enqueue(snapshot("r1", 2))
	a.Enqueue(snapshot("r1", 3))
	a.Close()

	d, ok := s.Load(context.Background(), "r1")
	require.True(t, ok)
	assert.Equal(t, 3, d.PassengerCount)
}

func TestAutosaver_FailureRetriedByNextEnqueue(t *testing.T) {
	kv := &flakyKV{MemoryKV: NewMemoryKV(), fail: true}
	s := NewStore(kv, "", nil)
	a := NewAutosaver(s, nil)
	defer a.Close()

	a.Enqueue(snapshot("r1", 1))
	a.Flush()
	_, ok := s.Load(context.Background(), "r1")
	assert.False(t, ok)

	kv.mu.Lock()
	kv.fail = false
	kv.mu.Unlock()
	a.Enqueue(snapshot("r1", 2))
	a.Flush()

	d, ok := s.Load(context.Background(), "r1")
	require.True(t, ok)
	assert.Equal(t, 2, d.PassengerCount)
}

func TestAutosaver_DiscardDropsPending(t *testing.T) {
	kv := &flakyKV{MemoryKV: NewMemoryKV()}
	s := NewStore(kv, "", nil)
	require.NoError(t, s.SaveDraft(context.Background(), snapshot("r1", 1)))
	a := NewAutosaver(s, nil)

	a.Enqueue(snapshot("r1", 2))
	require.NoError(t, a.Discard(context.Background(), "r1"))
	a.Close()

	_, ok := s.Load(context.Background(), "r1")
	assert.False(t, ok)
}

func TestAutosaver_EnqueueAfterCloseIsDropped(t *testing.T) {
	kv := &flakyKV{MemoryKV: NewMemoryKV()}
	a := NewAutosaver(NewStore(kv, "", nil), nil)
	a.Close()
	a.Enqueue(snapshot("r1", 1))
	a.Flush()
	assert.Zero(t, kv.sets)
}
