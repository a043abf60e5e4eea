package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
)

func collect(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("subscription for %s did not close", sub.JobID())
			return events
		}
	}
}

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry(nil)

	snap, err := r.Create("job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", snap.ID)
	assert.Equal(t, constants.StatusStarting, snap.Status)
	assert.Equal(t, 0, snap.Progress)
	assert.Nil(t, snap.Result)

	_, err = r.Create("job-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrDuplicateJob))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_UpdateUnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	assert.NotPanics(t, func() {
		r.Update("missing", "Reading document…", 10, nil)
	})
	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_SubscribeUnknown(t *testing.T) {
	r := NewRegistry(nil)
	_, sub, err := r.Subscribe("missing")
	require.Error(t, err)
	assert.Nil(t, sub)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestRegistry_LateSubscriberGetsSnapshotThenLiveUpdates(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("job")
	require.NoError(t, err)

	r.Update("job", constants.StatusReading, 10, nil)
	r.Update("job", constants.StatusTextExtracted, 30, nil)

	snap, sub, err := r.Subscribe("job")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusTextExtracted, snap.Status)
	assert.Equal(t, 30, snap.Progress)

	r.Update("job", constants.StatusCheckingRules, 80, nil)
	r.Update("job", constants.StatusFinalizing, 90, nil)
	r.Update("job", constants.StatusComplete, 100, map[string]string{"status": "pass"})
	r.Destroy("job")

	events := collect(t, sub)
	require.Len(t, events, 3)
	assert.Equal(t, []int{80, 90, 100}, []int{events[0].Progress, events[1].Progress, events[2].Progress})
	assert.Nil(t, events[0].Data)
	assert.Equal(t, map[string]string{"status": "pass"}, events[2].Data)
}

func TestRegistry_ProgressNeverDecreases(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("job")
	require.NoError(t, err)
	_, sub, err := r.Subscribe("job")
	require.NoError(t, err)

	r.Update("job", "a", 50, nil)
	r.Update("job", "b", 30, nil)
	r.Update("job", "c", 150, "done")
	r.Destroy("job")

	events := collect(t, sub)
	require.Len(t, events, 3)
	assert.Equal(t, 50, events[1].Progress)
	assert.Equal(t, "b", events[1].Status)
	assert.Equal(t, 100, events[2].Progress)
	assert.Equal(t, "done", events[2].Data)
}

func TestRegistry_NoUpdatesAfterTerminal(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("job")
	require.NoError(t, err)
	_, sub, err := r.Subscribe("job")
	require.NoError(t, err)

	r.Update("job", constants.StatusComplete, 100, "first")
	r.Update("job", constants.StatusFailed, 100, "second")
	r.Update("job", "late", 95, nil)
	r.Destroy("job")

	events := collect(t, sub)
	require.Len(t, events, 1)
	assert.Equal(t, "first", events[0].Data)
}

func TestRegistry_ResultOnlyAtCompletion(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("job")
	require.NoError(t, err)

	r.Update("job", "partial", 40, "ignored")
	snap, ok := r.Get("job")
	require.True(t, ok)
	assert.Nil(t, snap.Result)
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("job")
	require.NoError(t, err)
	_, sub, err := r.Subscribe("job")
	require.NoError(t, err)

	r.Unsubscribe(sub)
	sub.Close()
	r.Destroy("job")
	sub.Close()

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestRegistry_FanOutPreservesOrderForAllSubscribers(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("job")
	require.NoError(t, err)

	subs := make([]*Subscription, 3)
	for i := range subs {
		_, subs[i], err = r.Subscribe("job")
		require.NoError(t, err)
	}

	for p := 1; p <= 99; p++ {
		r.Update("job", "step", p, nil)
	}
	r.Update("job", constants.StatusComplete, 100, "ok")
	r.Destroy("job")

	for _, sub := range subs {
		events := collect(t, sub)
		require.Len(t, events, 100)
		for i, ev := range events {
			assert.Equal(t, i+1, ev.Progress)
		}
	}
}

func TestRegistry_DestroyAfter(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("job")
	require.NoError(t, err)

	r.DestroyAfter("job", 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, ok := r.Get("job")
		return !ok
	}, time.Second, 5*time.Millisecond)
}
