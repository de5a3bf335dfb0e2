package ws

import (
	"context"
	"sync/atomic"

	"github.com/zaqqye/complab_backend/internal/metrics"
)

type topicMessage struct {
	topic   string
	payload []byte
}

type dashboardClient struct {
	*client
	topics map[string]struct{} // empty means every topic
}

func (c *dashboardClient) wants(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	_, ok := c.topics[topic]
	return ok
}

// DashboardHub fans events out to dashboard sockets, each filtered by the
// topics it subscribed to.
type DashboardHub struct {
	register   chan *dashboardClient
	unregister chan *dashboardClient
	broadcast  chan topicMessage
	clients    map[*dashboardClient]struct{}
	count      atomic.Int64
	done       chan struct{}
}

func NewDashboardHub() *DashboardHub {
	return &DashboardHub{
		register:   make(chan *dashboardClient),
		done:       make(chan struct{}),
		unregister: make(chan *dashboardClient),
		broadcast:  make(chan topicMessage, 256),
		clients:    make(map[*dashboardClient]struct{}),
	}
}

func (h *DashboardHub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			h.drop(c)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.wants(msg.topic) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					h.drop(c)
				}
			}
		}
	}
}

func (h *DashboardHub) drop(c *dashboardClient) {
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
	h.setCount()
}

func (h *DashboardHub) setCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.WebsocketClients.WithLabelValues("dashboard").Set(float64(len(h.clients)))
}

// Clients reports the number of connected dashboards.
func (h *DashboardHub) Clients() int { return int(h.count.Load()) }

// enqueue never blocks; a full queue drops the message.
func (h *DashboardHub) enqueue(topic string, payload []byte) bool {
	select {
	case h.broadcast <- topicMessage{topic: topic, payload: payload}:
		return true
	default:
		return false
	}
}

// join registers c, or closes it if the hub has stopped.
func (h *DashboardHub) join(c *dashboardClient) {
	select {
	case h.register <- c:
	case <-h.done:
		c.conn.Close()
	}
}

func (h *DashboardHub) leave(c *dashboardClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
