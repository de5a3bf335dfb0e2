package events

import (
	"context"
	"sync"
)

// Recorder is an in-memory Publisher for tests and local wiring. Setting Err
// makes every Publish fail.
type Recorder struct {
	mu       sync.Mutex
	Err      error
	messages []Message
}

func (r *Recorder) Publish(_ context.Context, topic, event string, payload Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, Message{Topic: topic, Event: event, Type: payload.Type, Action: payload.Action, Data: payload.Data})
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Named returns recorded messages for one event name in publish order.
func (r *Recorder) Named(event string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// Topics lists the topics an event name was published to.
func (r *Recorder) Topics(event string) []string {
	var out []string
	for _, m := range r.Named(event) {
		out = append(out, m.Topic)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
