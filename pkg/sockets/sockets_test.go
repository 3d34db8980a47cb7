package sockets

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, opts ...func(*Conn)) (*websocket.Conn, chan *Conn) {
	t.Helper()
	conns := make(chan *Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := New(ws, opts...)
		conns <- c
		c.Run()
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, conns
}

func TestConnSendAndReceive(t *testing.T) {
	received := make(chan string, 1)
	client, conns := serve(t, OnMessage(func(msg []byte, c *Conn) {
		received <- string(msg)
		_ = c.Send([]byte("pong:" + string(msg)))
	}))
	conn := <-conns

	require.NoError(t, conn.Send([]byte("hello")))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hi")))
	assert.Equal(t, "hi", <-received)
	_, msg, err = client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong:hi", string(msg))
}

func TestConnPings(t *testing.T) {
	client, _ := serve(t, WithPingInterval(50*time.Millisecond))

	pinged := make(chan struct{}, 1)
	client.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestConnClose(t *testing.T) {
	client, conns := serve(t)
	conn := <-conns

	require.NoError(t, conn.Close())
	<-conn.Done()
	assert.ErrorIs(t, conn.Send([]byte("late")), ErrClosed)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}
