package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/muurk/scenebridge/internal/config"
	"github.com/muurk/scenebridge/internal/executor"
	"github.com/muurk/scenebridge/internal/handlers"
	"github.com/muurk/scenebridge/internal/journal"
	"github.com/muurk/scenebridge/internal/metrics"
	"github.com/muurk/scenebridge/internal/protocol"
	"github.com/muurk/scenebridge/internal/router"
	"github.com/muurk/scenebridge/internal/scene"
)

type harness struct {
	srv    *Server
	router *router.Router
	exec   *executor.Executor
	flags  *config.Flags
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := newIdleHarness(t, cfg, true, opts...)
	require.NoError(t, h.srv.Start())
	return h
}

func newIdleHarness(t *testing.T, cfg Config, runOwner bool, opts ...Option) *harness {
	t.Helper()
	flags := config.NewFlags(config.FeaturesConfig{})
	r := router.New(flags)
	require.NoError(t, handlers.RegisterAll(r, handlers.Deps{
		Scene:    scene.New(),
		Features: flags,
		TempDir:  t.TempDir(),
	}))

	exec := executor.New()
	if runOwner {
		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = exec.Run(ctx, 5*time.Millisecond) }()
		t.Cleanup(cancel)
	}

	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.AcceptPoll == 0 {
		cfg.AcceptPoll = 50 * time.Millisecond
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	srv := New(cfg, r, exec, opts...)
	t.Cleanup(func() { _ = srv.Stop() })
	return &harness{srv: srv, router: r, exec: exec, flags: flags}
}

type client struct {
	t    *testing.T
	conn net.Conn
	dec  *json.Decoder
}

func (h *harness) dial(t *testing.T) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", h.srv.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, dec: json.NewDecoder(conn)}
}

func (c *client) write(s string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(s))
	require.NoError(c.t, err)
}

func (c *client) read() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp map[string]any
	require.NoError(c.t, c.dec.Decode(&resp))
	return resp
}

func (c *client) send(cmd string) map[string]any {
	c.t.Helper()
	c.write(cmd)
	return c.read()
}

func TestExampleRequests(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.dial(t)

	c.write(`{"type": "create_object", "params": {"type": "CUBE", "location": [0, 0, 0]}}`)
	var raw json.RawMessage
	require.NoError(t, c.dec.Decode(&raw))
	assert.JSONEq(t, `{"status": "success", "result": {"name": "Cube", "type": "MESH"}}`, string(raw))

	resp := c.send(`{"type": "delete_object", "params": {"name": "Cube"}}`)
	assert.Equal(t, "success", resp["status"])

	resp = c.send(`{"type": "delete_object", "params": {"name": "Cube"}}`)
	assert.Equal(t, map[string]any{"status": "error", "message": "Object 'Cube' not found"}, resp)
}

func TestUnknownCommandKeepsConnection(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.dial(t)

	resp := c.send(`{"type": "fly_to_moon"}`)
	assert.Equal(t, "error", resp["status"])
	assert.Contains(t, resp["message"], "fly_to_moon")

	resp = c.send(`{"type": "get_scene_info"}`)
	assert.Equal(t, "success", resp["status"])
}

func TestDisabledFeatureLooksUnknown(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.dial(t)

	resp := c.send(`{"type": "search_assets", "params": {"asset_type": "hdris"}}`)
	assert.Equal(t, "Unknown command type: search_assets", resp["message"])
}

func TestSplitWritesDispatchOnce(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.dial(t)

	c.write(`{"type": "create_`)
	time.Sleep(30 * time.Millisecond)
	c.write(`object", "params": {"name": "Split"}`)
	time.Sleep(30 * time.Millisecond)
	c.write(`}`)

	resp := c.read()
	assert.Equal(t, map[string]any{"name": "Split", "type": "MESH"}, resp["result"])

	info := c.send(`{"type": "get_scene_info"}`)
	objects := info["result"].(map[string]any)["objects"].([]any)
	assert.Len(t, objects, 3)
}

func TestSeveralCommandsInOneWrite(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.dial(t)

	c.write(`{"type": "create_object", "params": {"name": "A"}} {"type": "create_object", "params": {"name": "B"}}` + "\n")
	first := c.read()
	second := c.read()
	assert.Equal(t, "A", first["result"].(map[string]any)["name"])
	assert.Equal(t, "B", second["result"].(map[string]any)["name"])
}

func TestMalformedAndInvalidInput(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.dial(t)

	resp := c.send(`{"type": ]`)
	assert.Equal(t, "error", resp["status"])
	assert.True(t, strings.HasPrefix(resp["message"].(string), "Invalid JSON: "), resp["message"])

	resp = c.send(`[1, 2, 3]`)
	assert.Equal(t, "Invalid command: expected a JSON object", resp["message"])

	resp = c.send(`{"params": {}}`)
	assert.Equal(t, "Invalid command: missing 'type' field", resp["message"])

	resp = c.send(`{"type": "get_scene_info"}`)
	assert.Equal(t, "success", resp["status"])
}

func TestBufferLimitClosesConnection(t *testing.T) {
	h := newHarness(t, Config{MaxBuffer: 64})
	c := h.dial(t)

	c.write(`{"type": "` + strings.Repeat("x", 100))
	resp := c.read()
	assert.Equal(t, "error", resp["status"])
	assert.Contains(t, resp["message"], "receive buffer limit exceeded")

	_, err := c.conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestIdleTimeoutClosesConnection(t *testing.T) {
	h := newHarness(t, Config{ReadTimeout: 100 * time.Millisecond})
	c := h.dial(t)

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := c.conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Eventually(t, func() bool { return h.srv.ActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentClientsNeverOverlap(t *testing.T) {
	h := newHarness(t, Config{})

	var inFlight, maxInFlight atomic.Int32
	require.NoError(t, h.router.Register("overlap_check", func(p router.Params) (any, error) {
		n := inFlight.Inc()
		defer inFlight.Dec()
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return "ok", nil
	}))

	const clients, perClient = 8, 10
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", h.srv.Addr().String())
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()
			dec := json.NewDecoder(conn)
			for k := 0; k < perClient; k++ {
				if _, err := conn.Write([]byte(`{"type": "overlap_check"}`)); !assert.NoError(t, err) {
					return
				}
				var resp map[string]any
				if !assert.NoError(t, dec.Decode(&resp)) {
					return
				}
				if resp["status"] == "success" {
					successes.Inc()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(clients*perClient), successes.Load())
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestLifecycle(t *testing.T) {
	h := newIdleHarness(t, Config{}, true)
	assert.Equal(t, StateIdle, h.srv.State())
	assert.Nil(t, h.srv.Addr())

	require.NoError(t, h.srv.Stop(), "stop before start")

	require.NoError(t, h.srv.Start())
	assert.Equal(t, StateRunning, h.srv.State())
	assert.True(t, h.srv.Running())
	assert.ErrorIs(t, h.srv.Start(), ErrAlreadyRunning)

	port := h.srv.Addr().(*net.TCPAddr).Port
	require.NoError(t, h.srv.Stop())
	require.NoError(t, h.srv.Stop(), "second stop")
	assert.Equal(t, StateIdle, h.srv.State())
	assert.False(t, h.srv.Running())

	h.srv.cfg.Port = port
	require.NoError(t, h.srv.Start())
	assert.Equal(t, port, h.srv.Addr().(*net.TCPAddr).Port)

	c := h.dial(t)
	resp := c.send(`{"type": "get_scene_info"}`)
	assert.Equal(t, "success", resp["status"])
}

func TestStartFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	h := newIdleHarness(t, Config{Port: ln.Addr().(*net.TCPAddr).Port}, true)
	err = h.srv.Start()
	assert.Error(t, err)
	assert.Equal(t, StateIdle, h.srv.State())
	assert.False(t, h.srv.Running())
}

func TestStopReleasesQueuedCommands(t *testing.T) {
	h := newIdleHarness(t, Config{}, false)
	require.NoError(t, h.srv.Start())

	c := h.dial(t)
	c.write(`{"type": "get_scene_info"}`)
	assert.Eventually(t, func() bool { return h.exec.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.srv.Stop())
	assert.Equal(t, 0, h.exec.Pending())
	assert.Eventually(t, func() bool { return h.srv.ActiveConnections() == 0 }, 2*time.Second, 5*time.Millisecond)

	_, err := c.conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestTaskQueuedAfterStopDoesNotRun(t *testing.T) {
	h := newIdleHarness(t, Config{}, false)
	require.NoError(t, h.srv.Start())

	ran := atomic.NewBool(false)
	task := h.srv.whileRunning(func() (any, error) {
		ran.Store(true)
		return "ran", nil
	})

	// A submission that passed the running check just before Stop lands
	// in the queue after CancelPending already emptied it.
	require.NoError(t, h.srv.Stop())

	done := make(chan protocol.Response, 1)
	go func() {
		resp, _ := h.exec.Submit(context.Background(), task)
		done <- resp
	}()
	assert.Eventually(t, func() bool { return h.exec.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.exec.Drain())

	resp := <-done
	assert.False(t, resp.OK())
	assert.Equal(t, executor.ErrShuttingDown.Error(), resp.Message)
	assert.False(t, ran.Load(), "the task must not touch the scene after Stop")
}

func TestJournalAndMetrics(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), 0)
	require.NoError(t, err)
	defer j.Close()
	m := metrics.New()

	h := newHarness(t, Config{}, WithJournal(j), WithMetrics(m))
	c := h.dial(t)
	c.send(`{"type": "get_scene_info"}`)
	c.send(`{"type": "delete_object", "params": {"name": "Nope"}}`)

	entries, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "delete_object", entries[0].Type)
	assert.Equal(t, "error", entries[0].Status)
	assert.Equal(t, "tcp", entries[0].Transport)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("get_scene_info", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsTotal.WithLabelValues("tcp")))
}

func TestHTTPSideListener(t *testing.T) {
	h := newHarness(t, Config{HTTPAddr: "127.0.0.1:0"}, WithMetrics(metrics.New()), WithVersion("1.2.3"))
	base := "http://" + h.srv.HTTPAddr().String()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "running", health.State)
	assert.Equal(t, "1.2.3", health.Version)
	assert.Contains(t, health.Commands, "get_scene_info")

	metricsResp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "scenebridge_active_connections")
}

func TestWebSocketGateway(t *testing.T) {
	h := newHarness(t, Config{HTTPAddr: "127.0.0.1:0"})
	url := fmt.Sprintf("ws://%s/ws", h.srv.HTTPAddr())

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type": "create_object", "params": {"type": "PLANE"}}`)))
	var resp map[string]any
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, map[string]any{"name": "Plane", "type": "MESH"}, resp["result"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, "error", resp["status"])

	_, _, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://example.com"}})
	assert.Error(t, err)
}

func TestUnencodableResultStillAnswered(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), 0)
	require.NoError(t, err)
	defer j.Close()
	m := metrics.New()

	h := newHarness(t, Config{HTTPAddr: "127.0.0.1:0"}, WithJournal(j), WithMetrics(m))

	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", h.srv.HTTPAddr()), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"execute_code","params":{"code":"(function(){})"}}`)))
	var wsResp map[string]any
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, ws.ReadJSON(&wsResp))
	assert.Equal(t, "error", wsResp["status"])
	assert.Contains(t, wsResp["message"], "failed to encode result")

	// The connection survives and keeps answering.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_scene_info"}`)))
	require.NoError(t, ws.ReadJSON(&wsResp))
	assert.Equal(t, "success", wsResp["status"])

	c := h.dial(t)
	resp := c.send(`{"type":"execute_code","params":{"code":"NaN"}}`)
	assert.Equal(t, "error", resp["status"])
	assert.Contains(t, resp["message"], "failed to encode result")

	entries, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "tcp", entries[0].Transport)
	assert.Equal(t, "error", entries[0].Status)
	assert.Equal(t, "websocket", entries[2].Transport)
	assert.Equal(t, "error", entries[2].Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("execute_code", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Commands.WithLabelValues("execute_code", "success")))
}

func TestLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1", true},
		{"http://[::1]:8080", true},
		{"https://example.com", false},
		{"http://localhost.example.com", false},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := localOrigin(r); got != tt.want {
			t.Errorf("localOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestConfigFrom(t *testing.T) {
	c := config.Default()
	c.HTTP.Enabled = true
	c.Discovery.Enabled = true

	cfg := ConfigFrom(c)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 9876, cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, time.Second, cfg.StopTimeout)
	assert.Equal(t, "localhost:9877", cfg.HTTPAddr)
	assert.Equal(t, "scenebridge", cfg.Instance)
}
