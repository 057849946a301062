package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/meshflow/testutil"
)

func TestNotifier_PublishToSubscribers(t *testing.T) {
	n := NewNotifier()

	subA, cancelA := n.Subscribe()
	defer cancelA()
	subB, cancelB := n.Subscribe()
	defer cancelB()

	assert.Equal(t, 2, n.Subscribers())

	n.Publish(Progress{JobID: "job-1", Stage: StageFetching})

	ctx := testutil.TestContextWithTimeout(t, time.Second)

	eventA, err := subA.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", eventA.JobID)
	assert.Equal(t, StageFetching, eventA.Stage)
	assert.False(t, eventA.Timestamp.IsZero())

	eventB, err := subB.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, eventA.JobID, eventB.JobID)
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := NewNotifier()

	sub, cancel := n.Subscribe()
	cancel()
	assert.Equal(t, 0, n.Subscribers())

	n.Publish(Progress{JobID: "job-2", Stage: StageDone})

	_, ok := sub.TryReceive()
	assert.False(t, ok)
}

func TestNotifier_PublishWithoutSubscribers(t *testing.T) {
	n := NewNotifier()
	// Must not block or panic.
	n.Publish(Progress{JobID: "job-3", Stage: StageQueued})
	assert.Equal(t, 0, n.Subscribers())
}

func TestNotifier_SlowSubscriberDropsEvents(t *testing.T) {
	n := NewNotifier()

	sub, cancel := n.Subscribe()
	defer cancel()

	// Overfill the subscriber buffer; extra events are dropped, not queued.
	for i := 0; i < 1000; i++ {
		n.Publish(Progress{JobID: "job-4", Stage: StageFetching})
	}

	received := 0
	for {
		if _, ok := sub.TryReceive(); !ok {
			break
		}
		received++
	}
	assert.Greater(t, received, 0)
	assert.Less(t, received, 1000)
}

func TestNotifier_PreservesTimestamp(t *testing.T) {
	n := NewNotifier()

	sub, cancel := n.Subscribe()
	defer cancel()

	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	n.Publish(Progress{JobID: "job-5", Stage: StageDone, Timestamp: ts})

	event, ok := sub.TryReceive()
	require.True(t, ok)
	assert.Equal(t, ts, event.Timestamp)
}
