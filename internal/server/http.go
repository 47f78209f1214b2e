package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/protocol"
)

// startHTTP binds the side listener. Called with s.mu held.
func (s *Server) startHTTP() error {
	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.httpHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpAddr = ln.Addr()
	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTP listener failed", zap.Error(err))
		}
	}()
	logging.Info("HTTP listener started", zap.String("addr", ln.Addr().String()))
	return nil
}

// HTTPAddr returns the bound side listener address, or nil when it is not
// running.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

func (s *Server) httpHandler() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Health is the /healthz body.
type Health struct {
	Status      string   `json:"status"`
	State       string   `json:"state"`
	Version     string   `json:"version"`
	Connections int      `json:"connections"`
	Pending     int      `json:"pending"`
	Commands    []string `json:"commands"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{
		Status:      "ok",
		State:       s.State().String(),
		Version:     s.version,
		Connections: s.ActiveConnections(),
		Pending:     s.exec.Pending(),
		Commands:    s.router.Available(),
	}
	code := http.StatusOK
	if !s.Running() {
		h.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(h)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: localOrigin,
}

// localOrigin admits requests without an Origin header and browser pages
// served from the local machine.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

// handleWebSocket serves the gateway: each text message is one command and
// gets exactly one response message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.Running() {
		http.Error(w, "server not running", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	if !s.track(id, conn.Close) {
		_ = conn.Close()
		return
	}
	s.metrics.RecordConnectionOpened("websocket")
	logging.LogConnection(id, r.RemoteAddr, "websocket_accepted")

	defer func() {
		_ = conn.Close()
		s.untrack(id)
		logging.LogConnection(id, r.RemoteAddr, "websocket_closed")
	}()

	if s.cfg.MaxBuffer > 0 {
		conn.SetReadLimit(int64(s.cfg.MaxBuffer))
	}
	for s.Running() {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug("WebSocket read ended", zap.String("conn_id", id), zap.Error(err))
			}
			return
		}
		s.metrics.RecordBytesRead(len(data))

		reply := s.handleMessage(id, data)
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			logging.Warn("Failed to write WebSocket response", zap.String("conn_id", id), zap.Error(err))
			return
		}
	}
}

// handleMessage answers one WebSocket message with an encoded Response.
func (s *Server) handleMessage(id string, data []byte) []byte {
	raw, _, err := protocol.Decode(data)
	if err != nil {
		s.metrics.RecordDecodeError("malformed")
		msg := err.Error()
		var malformed *protocol.MalformedError
		if errors.As(err, &malformed) {
			msg = malformed.Err.Error()
		}
		reply, _ := protocol.Encode(protocol.Failure("Invalid JSON: " + msg))
		return reply
	}
	cmd, err := protocol.ParseCommand(raw)
	if err != nil {
		s.metrics.RecordDecodeError("invalid_command")
		reply, _ := protocol.Encode(protocol.FromError(err))
		return reply
	}
	return s.process(id, "websocket", cmd)
}
