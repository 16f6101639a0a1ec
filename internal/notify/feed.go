package notify

import (
	"context"
	"encoding/json"
	"sync"
)

const maxRecentEvents = 50

// Broadcaster pushes a serialized event to live subscribers.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Feed keeps the most recent crossing events and forwards each one to an
// optional broadcaster.
type Feed struct {
	mu          sync.Mutex
	events      []CrossingEvent
	broadcaster Broadcaster
}

func NewFeed(b Broadcaster) *Feed {
	return &Feed{broadcaster: b}
}

func (f *Feed) Name() string { return "feed" }

// Send records ev and broadcasts it.
func (f *Feed) Send(_ context.Context, ev CrossingEvent) error {
	f.mu.Lock()
	f.events = append(f.events, ev)
	if over := len(f.events) - maxRecentEvents; over > 0 {
		f.events = append([]CrossingEvent(nil), f.events[over:]...)
	}
	b := f.broadcaster
	f.mu.Unlock()

	if b == nil {
		return nil
	}
	msg, err := json.Marshal(struct {
		Type  string        `json:"type"`
		Event CrossingEvent `json:"event"`
	}{Type: "crossing", Event: ev})
	if err != nil {
		return err
	}
	b.Broadcast(msg)
	return nil
}

// Recent returns the retained events, newest first.
func (f *Feed) Recent() []CrossingEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CrossingEvent, len(f.events))
	for i, ev := range f.events {
		out[len(f.events)-1-i] = ev
	}
	return out
}
