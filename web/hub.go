package web

import (
	"context"

	metrics "github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

const (
	socketBufferSize    = 1024
	messageBufferSize   = 10
	broadcastBufferSize = 64
)

// Hub fans snapshots out to every connected websocket client.
type Hub struct {
	// broadcast holds outgoing messages for all clients.
	broadcast chan []byte
	// register and unregister are used by clients joining and leaving.
	register   chan *client
	unregister chan *client
	// clients is owned by Run.
	clients map[*client]bool

	gauge metrics.Gauge
	done  chan struct{}
}

func NewHub(gauge metrics.Gauge) *Hub {
	if gauge == nil {
		gauge = metrics.NewGauge()
	}
	return &Hub{
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
		gauge:      gauge,
		done:       make(chan struct{}),
	}
}

// Run serves joins, leaves and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.quit)
			}
			h.gauge.Update(0)
			return
		case c := <-h.register:
			h.clients[c] = true
			h.gauge.Update(int64(len(h.clients)))
			log.Debugf("ws client joined %s", c.socket.RemoteAddr())
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.quit)
				h.gauge.Update(int64(len(h.clients)))
				log.Debugf("ws client left %s", c.socket.RemoteAddr())
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow reader; it catches up with the next snapshot
				}
			}
		}
	}
}

// Broadcast queues msg for every client. It never blocks; when the hub is
// behind the message is dropped.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
