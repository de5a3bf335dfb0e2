// Package events turns state transitions into explicit (topic, event,
// payload) tuples and hands each one to a Publisher.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zaqqye/complab_backend/internal/metrics"
)

const (
	TopicComputerStatus = "computer-status"
	TopicAudit          = "audit"
)

func ComputerTopic(ip string) string { return TopicComputerStatus + "." + ip }

func LabTopic(labID uint) string { return fmt.Sprintf("lab.%d", labID) }

// Payload is the {type, action, data} body every subscriber receives.
type Payload struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   any    `json:"data"`
}

// Message is the wire envelope.
type Message struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Event     string    `json:"event"`
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin,omitempty"`
}

func NewMessage(topic, event string, p Payload, at time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Event:     event,
		Type:      p.Type,
		Action:    p.Action,
		Data:      p.Data,
		Timestamp: at.UTC(),
	}
}

// Publisher delivers at most once. An error means this delivery was lost;
// callers never retry.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload Payload) error
}

// Event is one tuple produced by a transition.
type Event struct {
	Topic   string
	Name    string
	Payload Payload
}

// PublishAll hands every tuple to p. Failures are logged and counted but
// never returned: state has already committed by the time events go out.
func PublishAll(ctx context.Context, p Publisher, log *zap.Logger, evts []Event) {
	if p == nil {
		return
	}
	for _, e := range evts {
		if err := p.Publish(ctx, e.Topic, e.Name, e.Payload); err != nil {
			metrics.EventsPublishedTotal.WithLabelValues(e.Name, "error").Inc()
			if log != nil {
				log.Warn("event publish failed",
					zap.String("event", e.Name),
					zap.String("topic", e.Topic),
					zap.Error(err),
				)
			}
			continue
		}
		metrics.EventsPublishedTotal.WithLabelValues(e.Name, "ok").Inc()
	}
}

// Multi fans one publish out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic, event string, payload Payload) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
