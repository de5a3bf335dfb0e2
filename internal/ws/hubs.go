package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zaqqye/complab_backend/internal/events"
)

// ErrDropped reports that a hub queue was full and the message was lost.
var ErrDropped = errors.New("ws: hub queue full, message dropped")

type Hubs struct {
	Dashboard *DashboardHub
	Kiosk     *KioskHub
	now       func() time.Time
}

func NewHubs() *Hubs {
	return &Hubs{
		Dashboard: NewDashboardHub(),
		Kiosk:     NewKioskHub(),
		now:       time.Now,
	}
}

func (h *Hubs) Run(ctx context.Context) {
	go h.Dashboard.Run(ctx)
	go h.Kiosk.Run(ctx)
}

// Publish implements events.Publisher. Every topic reaches dashboards that
// subscribed to it; per-computer topics also reach that computer's kiosk.
func (h *Hubs) Publish(_ context.Context, topic, event string, payload events.Payload) error {
	data, err := json.Marshal(events.NewMessage(topic, event, payload, h.now()))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ok := h.Dashboard.enqueue(topic, data)
	if ip, found := strings.CutPrefix(topic, events.TopicComputerStatus+"."); found {
		ok = h.Kiosk.enqueue(ip, data) && ok
	}
	if !ok {
		return ErrDropped
	}
	return nil
}
