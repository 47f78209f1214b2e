package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/config"
	"github.com/muurk/scenebridge/internal/discovery"
	"github.com/muurk/scenebridge/internal/executor"
	"github.com/muurk/scenebridge/internal/journal"
	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/metrics"
	"github.com/muurk/scenebridge/internal/router"
)

// State is a position in the server lifecycle.
type State int32

// Lifecycle states. A server moves Idle → Starting → Running → Stopping → Idle.
const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ErrAlreadyRunning is returned by Start on a running server. The call has
// no other effect.
var ErrAlreadyRunning = errors.New("already running")

// Config holds the server configuration
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration // Idle time before a client is dropped
	WriteTimeout time.Duration // Deadline for writing one response
	AcceptPoll   time.Duration // How often the accept loop rechecks the running flag
	StopTimeout  time.Duration // How long Stop waits for the accept loop
	MaxBuffer    int           // Receive buffer ceiling per connection

	// HTTPAddr enables the side listener serving /metrics, /healthz and the
	// WebSocket gateway. Empty disables it.
	HTTPAddr string

	// Instance enables mDNS advertisement under this name. Empty disables it.
	Instance string
}

// ConfigFrom builds a server Config from the file configuration.
func ConfigFrom(c *config.Config) Config {
	cfg := Config{
		Host:         c.Server.Host,
		Port:         c.Server.Port,
		ReadTimeout:  c.Server.GetReadTimeout(),
		WriteTimeout: c.Server.GetWriteTimeout(),
		AcceptPoll:   c.Server.GetAcceptPoll(),
		StopTimeout:  c.Server.GetStopTimeout(),
		MaxBuffer:    c.Server.MaxBufferBytes,
	}
	if c.HTTP.Enabled {
		cfg.HTTPAddr = net.JoinHostPort(c.HTTP.Host, strconv.Itoa(c.HTTP.Port))
	}
	if c.Discovery.Enabled {
		cfg.Instance = c.Discovery.Instance
	}
	return cfg
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.AcceptPoll <= 0 {
		c.AcceptPoll = time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = time.Second
	}
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records connection and command metrics to m and serves them
// on the side listener.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithJournal records every processed command to j.
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithVersion sets the version advertised over mDNS and /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithFeatureList supplies the enabled feature names for mDNS TXT records.
func WithFeatureList(f func() []string) Option {
	return func(s *Server) { s.features = f }
}

// Server accepts command connections and forwards their commands to the
// executor. The zero value is not usable; create one with New.
type Server struct {
	cfg      Config
	router   *router.Router
	exec     *executor.Executor
	metrics  *metrics.Metrics
	journal  *journal.Journal
	version  string
	features func() []string

	// mu serializes Start and Stop.
	mu      sync.Mutex
	state   atomic.Int32
	running atomic.Bool

	listener   net.Listener
	acceptDone chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	httpServer *http.Server
	httpAddr   net.Addr
	advertiser *discovery.Advertiser

	// connsMu guards conns. The accept loop adds to it while Stop drains it.
	connsMu sync.Mutex
	conns   map[string]func() error
}

// New creates an idle Server. Nothing is bound until Start.
func New(cfg Config, r *router.Router, exec *executor.Executor, opts ...Option) *Server {
	cfg.setDefaults()
	s := &Server{
		cfg:     cfg,
		router:  r,
		exec:    exec,
		version: "dev",
		conns:   make(map[string]func() error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and launches the accept loop.
//
// On a running server it logs and returns ErrAlreadyRunning. A bind failure
// leaves the server idle.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		logging.Warn("Server already running", zap.String("addr", s.addrString()))
		return ErrAlreadyRunning
	}
	s.setState(StateStarting)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.setState(StateIdle)
		logging.Error("Failed to start server", zap.String("addr", addr), zap.Error(err))
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.acceptDone = make(chan struct{})
	s.running.Store(true)
	go s.acceptLoop(ln, s.acceptDone)

	if s.cfg.HTTPAddr != "" {
		if err := s.startHTTP(); err != nil {
			return multierr.Append(err, s.stopLocked())
		}
	}

	if s.cfg.Instance != "" {
		s.advertise(ln.Addr())
	}

	s.setState(StateRunning)
	logging.Info("Server started",
		zap.String("addr", ln.Addr().String()),
		zap.String("http_addr", s.cfg.HTTPAddr),
	)
	return nil
}

func (s *Server) advertise(addr net.Addr) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return
	}
	var features []string
	if s.features != nil {
		features = s.features()
	}
	adv, err := discovery.Advertise(s.cfg.Instance, tcp.Port, discovery.TXT(s.version, features))
	if err != nil {
		logging.Warn("mDNS advertisement unavailable", zap.Error(err))
		return
	}
	s.advertiser = adv
}

// RefreshAdvertisement republishes the mDNS TXT records, for example after
// features were toggled.
func (s *Server) RefreshAdvertisement() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advertiser == nil || s.features == nil {
		return
	}
	s.advertiser.SetText(discovery.TXT(s.version, s.features()))
}

// Stop shuts the server down: it clears the running flag, closes the
// listener and every live connection, fails queued commands with
// executor.ErrShuttingDown and waits up to the stop timeout for the accept
// loop. Live handlers are not joined; each exits on its own.
//
// Stopping a server that is not running only logs "not connected" and
// returns nil, so Stop may be called any number of times.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		logging.Info("Stop requested but server is not running: not connected")
		return nil
	}
	return s.stopLocked()
}

func (s *Server) stopLocked() error {
	s.setState(StateStopping)
	s.running.Store(false)
	s.cancel()

	var errs error
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = multierr.Append(errs, fmt.Errorf("failed to close listener: %w", err))
	}

	closed := s.closeConnections()
	canceled := s.exec.CancelPending(executor.ErrShuttingDown)

	select {
	case <-s.acceptDone:
	case <-time.After(s.cfg.StopTimeout):
		logging.Warn("Accept loop did not exit in time", zap.Duration("timeout", s.cfg.StopTimeout))
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to stop http listener: %w", err))
		}
		cancel()
		s.httpServer = nil
		s.httpAddr = nil
	}
	if s.advertiser != nil {
		s.advertiser.Shutdown()
		s.advertiser = nil
	}

	s.listener = nil
	s.setState(StateIdle)
	logging.Info("Server stopped",
		zap.Int("connections_closed", closed),
		zap.Int("commands_canceled", canceled),
	)
	return errs
}

func (s *Server) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)

	for s.running.Load() {
		if tl, ok := ln.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(s.cfg.AcceptPoll))
		}
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) || !s.running.Load() {
				return
			}
			logging.Error("Failed to accept connection", zap.Error(err))
			continue
		}

		id := uuid.NewString()
		if !s.track(id, conn.Close) {
			_ = conn.Close()
			continue
		}
		s.metrics.RecordConnectionOpened("tcp")
		go s.serveConn(id, conn)
	}
}

// track registers a live connection. It fails once the server has stopped,
// so a connection accepted during Stop is closed instead of leaked.
func (s *Server) track(id string, closeFn func() error) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[id] = closeFn
	return true
}

func (s *Server) untrack(id string) {
	s.connsMu.Lock()
	_, ok := s.conns[id]
	delete(s.conns, id)
	s.connsMu.Unlock()
	if ok {
		s.metrics.RecordConnectionClosed()
	}
}

func (s *Server) closeConnections() int {
	s.connsMu.Lock()
	conns := s.conns
	s.conns = make(map[string]func() error)
	s.connsMu.Unlock()

	for _, closeFn := range conns {
		_ = closeFn()
		s.metrics.RecordConnectionClosed()
	}
	return len(conns)
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Running reports whether the server accepts and dispatches commands.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Addr returns the bound listener address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) addrString() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ActiveConnections returns the number of live connections.
func (s *Server) ActiveConnections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}
