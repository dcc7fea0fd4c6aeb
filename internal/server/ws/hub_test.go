package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialHub(t *testing.T) (*Hub, *websocket.Conn, context.CancelFunc) {
	t.Helper()

	hub := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWS)
	wsSrv := httptest.NewServer(mux)
	t.Cleanup(wsSrv.Close)

	url := "ws" + strings.TrimPrefix(wsSrv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return hub, conn, cancel
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func channelOf(t *testing.T, env map[string]json.RawMessage) string {
	t.Helper()
	var ch string
	require.NoError(t, json.Unmarshal(env["channel"], &ch))
	return ch
}

func TestHub_HelloOnConnect(t *testing.T) {
	_, conn, cancel := dialHub(t)
	defer cancel()

	env := readEnvelope(t, conn)
	assert.Equal(t, ChannelStatus, channelOf(t, env))
}

func TestHub_BroadcastReachesSubscribedClient(t *testing.T) {
	hub, conn, cancel := dialHub(t)
	defer cancel()

	readEnvelope(t, conn) // hello

	// Default subscriptions include the book wildcard.
	waitForClients(t, hub, 1)
	hub.BroadcastJSON(ChannelBookPrefix+"b1", map[string]any{"best_bid": 100})

	env := readEnvelope(t, conn)
	assert.Equal(t, "book:b1", channelOf(t, env))
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub, conn, cancel := dialHub(t)
	defer cancel()

	readEnvelope(t, conn) // hello
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string][]string{
		"unsubscribe": {ChannelBookPrefix + "*"},
	}))

	// Give the read pump time to apply the change, then broadcast on both
	// channels; only the signal message should arrive.
	time.Sleep(100 * time.Millisecond)
	hub.BroadcastJSON(ChannelBookPrefix+"b1", map[string]any{"x": 1})
	hub.BroadcastJSON(ChannelSignal, map[string]any{"color": "green"})

	env := readEnvelope(t, conn)
	assert.Equal(t, ChannelSignal, channelOf(t, env))
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.clientCount() == n
	}, 2*time.Second, 10*time.Millisecond)
}
