package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otto/internal/ports"
)

func drain(ch <-chan ports.Event) []ports.Event {
	var out []ports.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

func TestPublishReachesOnlyTaskSubscribers(t *testing.T) {
	bus := NewBus()

	ch1, cancel1 := bus.Subscribe("task-1")
	defer cancel1()
	ch2, cancel2 := bus.Subscribe("task-2")
	defer cancel2()

	bus.Publish(ports.NewProgressEvent("task-1", "step-1", "halfway", 0.5, 2))

	got := drain(ch1)
	require.Len(t, got, 1)
	assert.Equal(t, ports.EventProgress, got[0].EventType())
	assert.Empty(t, drain(ch2))
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("task-1")
	defer cancel()

	for i := 0; i < 5; i++ {
		bus.Publish(ports.NewProgressEvent("task-1", "step-1", "", float64(i)/5, 5))
	}
	bus.Publish(ports.NewCompletionEvent("task-1", 1.0, time.Second, "done"))

	got := drain(ch)
	require.Len(t, got, 6)
	var last float64 = -1
	for _, ev := range got[:5] {
		progress := ev.(*ports.ProgressEvent)
		assert.Greater(t, progress.Progress, last)
		last = progress.Progress
	}
	assert.Equal(t, ports.EventCompletion, got[5].EventType())
}

func TestSlowSubscriberDropsOldestProgressButKeepsTerminal(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("task-1")
	defer cancel()

	// Overflow the buffer without reading.
	for i := 0; i < subscriberBuffer*2; i++ {
		bus.Publish(ports.NewProgressEvent("task-1", "step-1", "", float64(i), 1))
	}
	bus.Publish(ports.NewCompletionEvent("task-1", 1.0, time.Second, "done"))

	got := drain(ch)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), subscriberBuffer+1)

	var sawCompletion bool
	for _, ev := range got {
		if ev.EventType() == ports.EventCompletion {
			sawCompletion = true
		}
	}
	assert.True(t, sawCompletion, "completion event must survive overflow")

	// The oldest progress events were shed, the newest kept.
	first := got[0].(*ports.ProgressEvent)
	assert.Greater(t, first.Progress, 0.0)
}

func TestFailureEventSurvivesOverflow(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("task-1")
	defer cancel()

	bus.Publish(ports.NewFailureEvent("task-1", &ports.ErrorData{Kind: "tool", Message: "boom"}, map[string]any{"step_id": "step-2"}))
	for i := 0; i < subscriberBuffer*2; i++ {
		bus.Publish(ports.NewProgressEvent("task-1", "step-1", "", float64(i), 1))
	}

	var sawFailure bool
	for _, ev := range drain(ch) {
		if ev.EventType() == ports.EventFailure {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure, "failure event must not be displaced by progress")
}

func TestCancelDetachesSubscriber(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("task-1")

	assert.Equal(t, 1, bus.SubscriberCount("task-1"))
	cancel()
	assert.Equal(t, 0, bus.SubscriberCount("task-1"))

	// Publishing after cancel must not panic.
	bus.Publish(ports.NewProgressEvent("task-1", "step-1", "", 0.1, 1))

	_, open := <-ch
	assert.False(t, open)

	// Cancel is idempotent.
	cancel()
}

func TestCloseTaskClosesAllSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, _ := bus.Subscribe("task-1")
	ch2, _ := bus.Subscribe("task-1")

	bus.Publish(ports.NewCompletionEvent("task-1", 1.0, time.Second, "done"))
	bus.CloseTask("task-1")

	got1 := drain(ch1)
	got2 := drain(ch2)
	require.Len(t, got1, 1)
	require.Len(t, got2, 1)
	assert.Equal(t, 0, bus.SubscriberCount("task-1"))
}
