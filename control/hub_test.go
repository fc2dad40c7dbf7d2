package control

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polyarb/polyarb/engine"
)

type recordingController struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (c *recordingController) Start() {
	c.mu.Lock()
	c.starts++
	c.mu.Unlock()
}

func (c *recordingController) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
}

func (c *recordingController) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops
}

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func newRunningHub(t *testing.T, controller Controller) *Hub {
	t.Helper()
	hub := NewHub(controller, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestStartStopCommands(t *testing.T) {
	controller := &recordingController{}
	hub := newRunningHub(t, controller)
	conn := dialTestHub(t, hub)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "start"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "stop"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "selfdestruct"}))

	assert.Eventually(t, func() bool {
		starts, stops := controller.counts()
		return starts == 1 && stops == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLogBroadcast(t *testing.T) {
	hub := newRunningHub(t, &recordingController{})
	conn := dialTestHub(t, hub)

	// Registration races the broadcast; retry until the client is in.
	go func() {
		for i := 0; i < 50; i++ {
			hub.Log("No profitable opportunity found.")
			time.Sleep(20 * time.Millisecond)
		}
	}()

	frame := readFrame(t, conn)
	assert.Equal(t, "log", frame["type"])
	assert.Equal(t, "No profitable opportunity found.", frame["line"])
}

func TestStatusReplayedToNewClient(t *testing.T) {
	hub := newRunningHub(t, &recordingController{})

	hub.Status(engine.StatusUpdate{
		Running:             true,
		Status:              engine.StatusScanning,
		CumulativeNetProfit: big.NewInt(3_800_000),
		LastTxHash:          "0xabc",
	})

	conn := dialTestHub(t, hub)
	frame := readFrame(t, conn)
	assert.Equal(t, "status", frame["type"])
	assert.Equal(t, true, frame["running"])
	assert.Equal(t, "Scanning", frame["status"])
	assert.Equal(t, "3800000", frame["totalNetProfit"])
	assert.Equal(t, "0xabc", frame["lastTxHash"])
}
