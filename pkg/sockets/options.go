package sockets

import "time"

func WithPingInterval(d time.Duration) func(*Conn) {
	return func(c *Conn) {
		c.pingInterval = d
		if c.pongWait <= d {
			c.pongWait = d * 10 / 9
		}
	}
}

func WithWriteWait(d time.Duration) func(*Conn) {
	return func(c *Conn) {
		c.writeWait = d
	}
}

func WithBuffer(n int) func(*Conn) {
	return func(c *Conn) {
		c.buffer = n
	}
}

func OnMessage(f func([]byte, *Conn)) func(*Conn) {
	return func(c *Conn) {
		c.onMessage = f
	}
}

func OnError(f func(error)) func(*Conn) {
	return func(c *Conn) {
		c.onError = f
	}
}
