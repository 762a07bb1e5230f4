package server

import (
	"context"
	"sync"
	"time"

	"github.com/inkwell-labs/inkwell/backend/internal/presence"
)

const (
	// PresenceEventJoined announces a collaborator coming online.
	PresenceEventJoined = "collaborator-joined"
	// PresenceEventLeft announces a collaborator going offline.
	PresenceEventLeft = "collaborator-left"
	// PresenceEventCursorMoved announces a cursor update.
	PresenceEventCursorMoved = "cursor-moved"
)

// PresenceEvent is pushed to clients watching a note.
type PresenceEvent struct {
	NoteID    string           `json:"note_id"`
	UserID    string           `json:"user_id"`
	EventType string           `json:"event_type"`
	Cursor    *presence.Cursor `json:"cursor,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventDispatcher fans presence events out to per-note subscriber streams.
// Slow subscribers drop events rather than blocking the publisher.
type EventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*eventSubscriber
	nextID      int64
	bufferSize  int
}

type eventSubscriber struct {
	id     int64
	stream chan PresenceEvent
}

// NewEventDispatcher constructs an EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		subscribers: make(map[string]map[int64]*eventSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for a note's presence events. The stream is
// torn down when the context is cancelled or the cleanup func runs.
func (d *EventDispatcher) Subscribe(ctx context.Context, noteID string) (<-chan PresenceEvent, func()) {
	if noteID == "" {
		ch := make(chan PresenceEvent)
		close(ch)
		return ch, func() {}
	}
	subscriber := &eventSubscriber{
		id:     d.nextSequence(),
		stream: make(chan PresenceEvent, d.bufferSize),
	}
	d.registerSubscriber(noteID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(noteID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the event to every stream subscribed to its note.
func (d *EventDispatcher) Publish(event PresenceEvent) {
	if event.NoteID == "" || event.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[event.NoteID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*eventSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (d *EventDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *EventDispatcher) registerSubscriber(noteID string, subscriber *eventSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[noteID]; !ok {
		d.subscribers[noteID] = make(map[int64]*eventSubscriber)
	}
	d.subscribers[noteID][subscriber.id] = subscriber
}

func (d *EventDispatcher) unregisterSubscriber(noteID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[noteID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, noteID)
		}
	}
	d.mu.Unlock()
}
