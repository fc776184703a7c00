package events

import (
	"sync"

	"otto/internal/logging"
	"otto/internal/ports"
)

const subscriberBuffer = 64

// Bus is the per-task event fan-out. Subscribers get events for their task in
// publish order. A slow subscriber loses the oldest progress events first;
// completion and failure events are never dropped. Closing happens via the
// cancel function returned by Subscribe or when the task finishes.
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]*subscriber
	logger logging.Logger
}

type subscriber struct {
	ch     chan ports.Event
	taskID string
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		topics: make(map[string][]*subscriber),
		logger: logging.NewComponentLogger("EventBus"),
	}
}

// Subscribe opens a channel for one task's events. The cancel function
// detaches and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(taskID string) (<-chan ports.Event, func()) {
	sub := &subscriber{
		ch:     make(chan ports.Event, subscriberBuffer),
		taskID: taskID,
	}

	b.mu.Lock()
	b.topics[taskID] = append(b.topics[taskID], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		subs := b.topics[taskID]
		for i, s := range subs {
			if s == sub {
				b.topics[taskID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.topics[taskID]) == 0 {
			delete(b.topics, taskID)
		}
		b.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscriber of its task. Publishing to a
// task with no subscribers is a no-op.
func (b *Bus) Publish(event ports.Event) {
	taskID := event.EventTaskID()

	b.mu.RLock()
	subs := make([]*subscriber, len(b.topics[taskID]))
	copy(subs, b.topics[taskID])
	b.mu.RUnlock()

	critical := event.EventType() != ports.EventProgress
	for _, sub := range subs {
		b.deliver(sub, event, critical)
	}
}

// deliver pushes one event into one subscriber channel. For progress events a
// full buffer sheds the oldest queued event; for completion and failure the
// shedding repeats until the event fits, so terminal events always land.
func (b *Bus) deliver(sub *subscriber, event ports.Event, critical bool) {
	// The subscriber may have cancelled between the snapshot and the send.
	defer func() { _ = recover() }()

	for {
		select {
		case sub.ch <- event:
			return
		default:
		}

		// Buffer full: make room by discarding the oldest queued event.
		select {
		case dropped := <-sub.ch:
			if dropped.EventType() != ports.EventProgress {
				if !critical {
					// A queued terminal event outranks new progress; requeue
					// it and drop ours.
					b.deliver(sub, dropped, true)
					b.logger.Warn("Dropped progress event for slow subscriber (task=%s)", sub.taskID)
					return
				}
				// Both are critical; redeliver the displaced one after ours.
				defer b.deliver(sub, dropped, true)
			} else if !critical {
				b.logger.Debug("Shed oldest progress event for slow subscriber (task=%s)", sub.taskID)
			}
		default:
			// Channel drained concurrently; retry the send.
		}
	}
}

// CloseTask closes every subscriber channel for a finished task. Call after
// the terminal event has been published.
func (b *Bus) CloseTask(taskID string) {
	b.mu.Lock()
	subs := b.topics[taskID]
	delete(b.topics, taskID)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// SubscriberCount reports the live subscriber count for a task.
func (b *Bus) SubscriberCount(taskID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[taskID])
}
