package ws

import (
	"context"
	"sync/atomic"

	"github.com/zaqqye/complab_backend/internal/metrics"
)

type kioskClient struct {
	*client
	ip string
}

// KioskHub holds one socket per workstation IP. A reconnect from the same IP
// replaces the previous socket.
type KioskHub struct {
	register   chan *kioskClient
	unregister chan *kioskClient
	notify     chan topicMessage
	clients    map[string]*kioskClient
	count      atomic.Int64
	done       chan struct{}
}

func NewKioskHub() *KioskHub {
	return &KioskHub{
		register:   make(chan *kioskClient),
		done:       make(chan struct{}),
		unregister: make(chan *kioskClient),
		notify:     make(chan topicMessage, 256),
		clients:    make(map[string]*kioskClient),
	}
}

func (h *KioskHub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, c := range h.clients {
			h.drop(c)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			if existing, ok := h.clients[c.ip]; ok {
				h.drop(existing)
			}
			h.clients[c.ip] = c
			h.setCount()
		case c := <-h.unregister:
			if stored, ok := h.clients[c.ip]; ok && stored == c {
				h.drop(c)
			}
		case msg := <-h.notify:
			if c, ok := h.clients[msg.topic]; ok {
				select {
				case c.send <- msg.payload:
				default:
					h.drop(c)
				}
			}
		}
	}
}

func (h *KioskHub) drop(c *kioskClient) {
	delete(h.clients, c.ip)
	close(c.send)
	c.conn.Close()
	h.setCount()
}

func (h *KioskHub) setCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.WebsocketClients.WithLabelValues("kiosk").Set(float64(len(h.clients)))
}

func (h *KioskHub) Clients() int { return int(h.count.Load()) }

func (h *KioskHub) enqueue(ip string, payload []byte) bool {
	select {
	case h.notify <- topicMessage{topic: ip, payload: payload}:
		return true
	default:
		return false
	}
}

// join registers c, or closes it if the hub has stopped.
func (h *KioskHub) join(c *kioskClient) {
	select {
	case h.register <- c:
	case <-h.done:
		c.conn.Close()
	}
}

func (h *KioskHub) leave(c *kioskClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
