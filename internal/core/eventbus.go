package core

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// EventType names what happened; the payload type depends on it.
type EventType string

const (
	// Payload: DeviceView.
	StateChangedEvent EventType = "StateChanged"
	// Payload: string status line, e.g. "kitchen on".
	StatusReportedEvent EventType = "StatusReported"
	// Payload: []string of "#RRGGBB", one per pixel.
	FrameRenderedEvent EventType = "FrameRendered"
	// Payload: DeviceView with the new link state.
	DriverConnectionEvent EventType = "DriverConnection"
	// Payload: nil; listeners re-read the schedule list.
	SchedulesChangedEvent EventType = "SchedulesChanged"
)

const subscriberBuffer = 100

type Event struct {
	Type    EventType
	Payload interface{}
}

type Subscriber chan Event

// EventBus fans out controller activity to the MQTT adapter and the
// websocket server. Publishing never blocks: a subscriber whose buffer is
// full misses the event.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	closed      map[Subscriber]bool
	dropped     atomic.Uint64
	logger      *log.Entry
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		closed:      make(map[Subscriber]bool),
		logger:      log.WithField("component", "eventbus"),
	}
}

// Subscribe returns a buffered channel receiving the given event types.
func (eb *EventBus) Subscribe(eventTypes ...EventType) Subscriber {
	ch := make(Subscriber, subscriberBuffer)

	eb.mu.Lock()
	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}
	eb.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery of eventTypes to ch. The channel stays open.
func (eb *EventBus) Unsubscribe(ch Subscriber, eventTypes ...EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for _, t := range eventTypes {
		eb.removeLocked(t, ch)
	}
}

// Drop removes ch from every event type and closes it, ending any range
// loop over it. Dropping twice is harmless.
func (eb *EventBus) Drop(ch Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for t := range eb.subscribers {
		eb.removeLocked(t, ch)
	}
	if !eb.closed[ch] {
		eb.closed[ch] = true
		close(ch)
	}
}

func (eb *EventBus) removeLocked(t EventType, ch Subscriber) {
	subs := eb.subscribers[t]
	kept := subs[:0]
	for _, sub := range subs {
		if sub != ch {
			kept = append(kept, sub)
		}
	}
	if len(kept) == 0 {
		delete(eb.subscribers, t)
		return
	}
	eb.subscribers[t] = kept
}

// Publish delivers event to every subscriber of its type.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscribers[event.Type] {
		select {
		case sub <- event:
		default:
			if n := eb.dropped.Add(1); n%subscriberBuffer == 1 {
				eb.logger.Debugf("slow subscriber, %d events dropped so far (last %s)", n, event.Type)
			}
		}
	}
}

// Dropped counts events lost to full subscriber buffers.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}

// Send publishes a status line, so the bus can act as a status reporter.
func (eb *EventBus) Send(text string) error {
	eb.Publish(Event{Type: StatusReportedEvent, Payload: text})
	return nil
}
