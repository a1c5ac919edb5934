package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func newEchoServer(t *testing.T, frames [][]byte) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				return
			}
		}
		// Keep the connection open briefly so the client's read loop has a
		// chance to process every frame before the server closes it.
		time.Sleep(200 * time.Millisecond)
	}))
	return srv
}

func TestClient_DispatchesFramesToHandler(t *testing.T) {
	frames := [][]byte{[]byte(`{"a":1}`), []byte(`{"a":2}`)}
	srv := newEchoServer(t, frames)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]

	var got [][]byte
	done := make(chan struct{})
	handler := func(raw []byte) error {
		cp := append([]byte(nil), raw...)
		got = append(got, cp)
		if len(got) == len(frames) {
			close(done)
		}
		return nil
	}

	c := New(wsURL, handler, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go c.Run(ctx)

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("timed out waiting for frames, got %d of %d", len(got), len(frames))
	}

	for i, f := range frames {
		if string(got[i]) != string(f) {
			t.Fatalf("frame %d = %q, want %q", i, got[i], f)
		}
	}
}

func TestClient_OnConnectedFiresOncePerDial(t *testing.T) {
	srv := newEchoServer(t, [][]byte{[]byte(`{}`)})
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	var connects int
	c := New(wsURL, func(raw []byte) error { return nil }, zerolog.Nop())
	c.OnConnected(func() { connects++ })

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	if connects < 1 {
		t.Fatalf("expected OnConnected to fire at least once, got %d", connects)
	}
}
