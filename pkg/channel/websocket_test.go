package channel

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer greets each client with hello and then echoes binary frames.
func echoServer(t *testing.T, hello []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if hello != nil {
			_ = conn.WriteMessage(websocket.BinaryMessage, hello)
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("ignored"))
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(kind, data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSendWhileClosed(t *testing.T) {
	c := NewWebsocketChannel("ws://127.0.0.1:1/ws", nil, nil)
	if c.IsOpen() {
		t.Fatal("new channel reports open")
	}
	if err := c.Send([]byte{2, 0}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Send = %v, want ErrNotOpen", err)
	}
}

func TestWebsocketChannelRoundTrip(t *testing.T) {
	hello := []byte{9, 9, 9}
	srv := echoServer(t, hello)

	frames := make(chan []byte, 8)
	c := NewWebsocketChannel(wsURL(srv), func(f []byte) { frames <- f }, nil)
	c.SetReconnectInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	waitFor(t, c.IsOpen)

	select {
	case f := <-frames:
		if !bytes.Equal(f, hello) {
			t.Fatalf("first frame = %v, want %v", f, hello)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no greeting frame")
	}

	out := []byte{2, 1, 0, 0x70, 0, 0x90, 0, 0}
	if err := c.Send(out); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case f := <-frames:
		if !bytes.Equal(f, out) {
			t.Fatalf("echo = %v, want %v", f, out)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no echo")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop")
	}
	if c.IsOpen() {
		t.Error("channel still open after cancel")
	}
}

func TestWebsocketChannelReconnects(t *testing.T) {
	srv := echoServer(t, nil)
	c := NewWebsocketChannel(wsURL(srv), nil, nil)
	c.SetReconnectInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	waitFor(t, c.IsOpen)
	_ = c.Close()
	waitFor(t, c.IsOpen)
}
