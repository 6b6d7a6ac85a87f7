package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 8192
)

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  socketBufferSize,
	WriteBufferSize: socketBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one websocket connection. It reads control messages and writes
// snapshots from its send queue.
type client struct {
	socket *websocket.Conn
	send   chan []byte
	quit   chan struct{}
	hub    *Hub
	ctrl   Controller
}

func (c *client) read() {
	defer c.socket.Close()
	c.socket.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read error: %v", err)
			}
			return
		}
		msg, err := Decode(raw)
		if err == nil {
			err = Dispatch(c.ctrl, msg)
		}
		if err != nil {
			log.Debugf("ws message rejected: %v", err)
			c.reply(encodeError(err))
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for {
		select {
		case msg := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.quit:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// reply queues msg for this client only. It is dropped when the queue is full.
func (c *client) reply(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func serveWs(h *Hub, ctrl Controller, w http.ResponseWriter, r *http.Request) {
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
		quit:   make(chan struct{}),
		hub:    h,
		ctrl:   ctrl,
	}
	if !h.join(c) {
		socket.Close()
		return
	}
	if b, err := encodeSnapshot(ctrl.Current()); err == nil {
		c.reply(b)
	}
	defer h.leave(c)
	go c.write()
	c.read()
}
