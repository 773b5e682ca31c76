package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)
	return NewHub(logger)
}

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesSubscriber(t *testing.T) {
	h := newTestHub()
	conn := dialHub(t, h)
	waitForClients(t, h, 1)

	require.NoError(t, conn.WriteJSON(clientCommand{Type: "subscribe", Pool: "0xpool"}))

	// subscribe is processed by the read pump; retry the broadcast until the
	// frame arrives or the deadline hits
	got := make(chan PriceMessage, 1)
	go func() {
		var msg PriceMessage
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		if err := conn.ReadJSON(&msg); err == nil {
			got <- msg
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		h.BroadcastPrice("0xpool", 12.5, 1_700_000_000_000)
		select {
		case msg := <-got:
			assert.Equal(t, "price", msg.Type)
			assert.Equal(t, "0xpool", msg.Pool)
			assert.Equal(t, 12.5, msg.Price)
			return
		case <-time.After(20 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("subscribed client never received the broadcast")
			}
		}
	}
}

func TestBroadcastSkipsUnsubscribed(t *testing.T) {
	h := newTestHub()
	conn := dialHub(t, h)
	waitForClients(t, h, 1)

	h.BroadcastPrice("0xother", 1, 1_700_000_000_000)

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var msg json.RawMessage
	err := conn.ReadJSON(&msg)
	assert.Error(t, err, "no frame should arrive for a pool the client never subscribed to")
}

func TestBroadcastWithNoClients(t *testing.T) {
	h := newTestHub()
	assert.NotPanics(t, func() {
		h.BroadcastPrice("0xpool", 1, 1_700_000_000_000)
	})
}

func TestRunClosesClientsOnCancel(t *testing.T) {
	h := newTestHub()
	dialHub(t, h)
	waitForClients(t, h, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, h.ConnectionCount())
}
