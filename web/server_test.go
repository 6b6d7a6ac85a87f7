package web

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"kfsim-go/config"
	"kfsim-go/kalman"
	"kfsim-go/server"
	"kfsim-go/sim"
)

type fakeController struct {
	mu       sync.Mutex
	cursors  []sim.Point
	updates  []sim.ControlsUpdate
	matrices map[sim.MatrixKey]kalman.Matrix4
	resets   int
	restarts int
	snap     sim.Snapshot
}

func newFakeController() *fakeController {
	return &fakeController{
		matrices: map[sim.MatrixKey]kalman.Matrix4{},
		snap:     sim.Initial(sim.DefaultControls()),
	}
}

func (f *fakeController) SubmitCursor(p sim.Point) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, p)
	return true
}

func (f *fakeController) UpdateControls(u sim.ControlsUpdate) error {
	if err := config.ValidateUpdate(u); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeController) SetMatrix(k sim.MatrixKey, m kalman.Matrix4) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matrices[k] = m
	return nil
}

func (f *fakeController) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeController) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return nil
}

func (f *fakeController) Current() sim.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) cursorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cursors)
}

func (f *fakeController) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func startServer(t *testing.T, ctrl Controller) (*Server, *httptest.Server) {
	t.Helper()
	m := server.NewMetrics()
	s := NewServer(ctrl, NewHub(m.Clients), m)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Hub.Run(ctx)
	ts := httptest.NewServer(s.Handler(""))
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readOutbound(t *testing.T, conn *websocket.Conn) Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var out Outbound
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestWebsocketInitialSnapshotAndBroadcast(t *testing.T) {
	ctrl := newFakeController()
	s, ts := startServer(t, ctrl)
	conn := dial(t, ts)

	out := readOutbound(t, conn)
	require.Equal(t, MsgSnapshot, out.Type)
	require.NotNil(t, out.Snapshot)
	require.Equal(t, uint64(0), out.Snapshot.Tick)

	next := ctrl.Current()
	next.Tick = 7
	next.EstimatedState = kalman.Vector4{1, 2, 3, 4}
	s.Publish(next)

	out = readOutbound(t, conn)
	require.Equal(t, MsgSnapshot, out.Type)
	require.Equal(t, uint64(7), out.Snapshot.Tick)
	require.Equal(t, kalman.Vector4{1, 2, 3, 4}, out.Snapshot.EstimatedState)
}

func TestWebsocketCommands(t *testing.T) {
	ctrl := newFakeController()
	_, ts := startServer(t, ctrl)
	conn := dial(t, ts)
	readOutbound(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cursor","position":{"x":12,"y":34}}`)))
	require.Eventually(t, func() bool { return ctrl.cursorCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// non-numeric cells are rejected before reaching the controller
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"matrix","matrix":"R","values":[["a",0,0,0],[0,1,0,0],[0,0,1,0],[0,0,0,1]]}`)))
	out := readOutbound(t, conn)
	require.Equal(t, MsgError, out.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"controls","controls":{"noiseAmount":-1}}`)))
	out = readOutbound(t, conn)
	require.Equal(t, MsgError, out.Type)
	require.Contains(t, out.Error, "noiseAmount")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	out = readOutbound(t, conn)
	require.Equal(t, MsgError, out.Type)
}

func TestDispatch(t *testing.T) {
	ctrl := newFakeController()
	running := true
	require.NoError(t, Dispatch(ctrl, Inbound{Type: MsgRun, Running: &running}))
	require.NoError(t, Dispatch(ctrl, Inbound{Type: MsgReset}))
	require.NoError(t, Dispatch(ctrl, Inbound{Type: MsgRestart}))
	q := kalman.Diagonal(1, 1, 1, 1)
	require.NoError(t, Dispatch(ctrl, Inbound{Type: MsgMatrix, Matrix: "q", Values: &q}))

	require.Len(t, ctrl.updates, 1)
	require.True(t, *ctrl.updates[0].IsRunning)
	require.Equal(t, 1, ctrl.resets)
	require.Equal(t, 1, ctrl.restarts)
	require.Equal(t, q, ctrl.matrices[sim.MatrixQ])

	require.ErrorIs(t, Dispatch(ctrl, Inbound{Type: MsgCursor}), config.ErrInvalidParameter)
	require.ErrorIs(t, Dispatch(ctrl, Inbound{Type: MsgMatrix, Matrix: "Z", Values: &q}), config.ErrInvalidParameter)
	require.ErrorIs(t, Dispatch(ctrl, Inbound{Type: MsgRun}), config.ErrInvalidParameter)
}

func TestHTTPEndpoints(t *testing.T) {
	ctrl := newFakeController()
	_, ts := startServer(t, ctrl)

	resp, err := http.Get(ts.URL + "/api/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	require.Contains(t, m, "predictedState")
	require.Contains(t, m, "predictedCovariance")

	resp2, err := http.Post(ts.URL+"/api/command", "application/json", bytes.NewBufferString(`{"type":"reset"}`))
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusAccepted, resp2.StatusCode)
	require.Equal(t, 1, ctrl.resetCount())

	resp3, err := http.Post(ts.URL+"/api/command", "application/json", bytes.NewBufferString(`{"type":"controls"}`))
	require.NoError(t, err)
	resp3.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp3.StatusCode)

	resp4, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp4.Body.Close()
	var metrics map[string]any
	require.NoError(t, json.NewDecoder(resp4.Body).Decode(&metrics))
	require.Contains(t, metrics, "kfsim.ticks")
}

func TestWriteJSONUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"x": math.Inf(1)})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"x": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"x":1}`, rec.Body.String())
}
