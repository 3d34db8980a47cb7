package sockets

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrClosed       = errors.New("closed connection")
	ErrSlowConsumer = errors.New("send buffer full")
)

const maxMessageSize = 64 * 1024

// Conn is the server side of one websocket. Writes are queued and flushed by
// a single writer goroutine; the peer is pinged so dead connections time out.
type Conn struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	buffer       int
	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
	onError      func(err error)
	onMessage    func([]byte, *Conn)
}

func New(ws *websocket.Conn, opts ...func(*Conn)) *Conn {
	c := &Conn{
		ws:           ws,
		done:         make(chan struct{}),
		buffer:       16,
		pingInterval: 54 * time.Second,
		pongWait:     60 * time.Second,
		writeWait:    2 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	c.send = make(chan []byte, c.buffer)
	return c
}

// Send queues msg without blocking. A peer that cannot keep up is dropped.
func (c *Conn) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.Close()
		return ErrSlowConsumer
	}
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
	return nil
}

// Run serves the connection until the peer goes away or Close is called.
func (c *Conn) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.onError != nil {
				c.onError(err)
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(msg, c)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				if c.onError != nil {
					c.onError(err)
				}
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.writeWait))
			return
		}
	}
}
