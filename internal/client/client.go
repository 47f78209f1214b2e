// Package client sends commands to a running scenebridge server over TCP.
//
// A Client keeps one connection open and reuses it for every Send, dialing
// again when the previous connection failed. The server drops idle clients,
// so a reused connection that turns out to be closed before any reply byte
// arrives is redialed and the command sent once more. Failures are returned as
// *remote.Error so callers can show a troubleshooting hint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/protocol"
	"github.com/muurk/scenebridge/internal/remote"
)

const (
	// DefaultTimeout bounds one command round trip. Scripts run by
	// execute_code hold the server for their whole duration.
	DefaultTimeout = 180 * time.Second

	// DefaultDialTimeout bounds establishing the connection
	DefaultDialTimeout = 5 * time.Second

	// DefaultMaxRetries is the number of extra dial attempts
	DefaultMaxRetries = 2

	// DefaultRetryDelay is the initial delay between dial attempts
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay caps the exponential backoff
	DefaultMaxRetryDelay = 5 * time.Second

	// Service names the server in errors.
	Service = "scenebridge server"
)

// Client talks to one server address.
type Client struct {
	// Addr is the host:port of the server
	Addr string

	// Timeout bounds one command round trip (0 = DefaultTimeout)
	Timeout time.Duration

	// DialTimeout bounds connecting (0 = DefaultDialTimeout)
	DialTimeout time.Duration

	// MaxRetries is how many times a failed dial is retried. A written
	// command is resent only after a stale connection, and only once.
	MaxRetries int

	// RetryDelay is the initial delay between dial attempts
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff
	MaxRetryDelay time.Duration

	mu   sync.Mutex
	conn net.Conn
	in   *countingReader
	dec  *json.Decoder
}

// countingReader counts the bytes read from a connection.
type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// New creates a client for the server at host:port.
func New(host string, port int) *Client {
	return NewWithAddr(net.JoinHostPort(host, strconv.Itoa(port)))
}

// NewWithAddr creates a client for addr.
func NewWithAddr(addr string) *Client {
	return &Client{
		Addr:          addr,
		Timeout:       DefaultTimeout,
		DialTimeout:   DefaultDialTimeout,
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

// SetTimeout sets the round trip timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.Timeout = timeout
}

// Send writes cmd and waits for its Response. Sends are serialized; the
// server answers one command per connection at a time anyway.
//
// A non-nil error means no Response was received. An error Response from the
// server is not a Go error; check Response.OK.
func (c *Client) Send(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	if cmd.Type == "" {
		return protocol.Response{}, errors.New("command type cannot be empty")
	}
	if cmd.Params == nil {
		cmd.Params = map[string]any{}
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("failed to encode command: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reused := c.conn != nil
	if !reused {
		if err := c.dial(ctx); err != nil {
			return protocol.Response{}, err
		}
	}

	received := c.in.n
	resp, err := c.roundTrip(ctx, payload)
	if err != nil && reused && c.in.n == received && ctx.Err() == nil && staleConn(err) {
		logging.Debug("Connection went stale, reconnecting", zap.String("addr", c.Addr), zap.Error(err))
		c.closeLocked()
		if err = c.dial(ctx); err == nil {
			resp, err = c.roundTrip(ctx, payload)
		}
	}
	if err != nil {
		c.closeLocked()
		return protocol.Response{}, err
	}
	return resp, nil
}

// staleConn reports errors a peer that already closed the connection
// produces.
func staleConn(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// Call is Send with a type and params.
func (c *Client) Call(ctx context.Context, cmdType string, params map[string]any) (protocol.Response, error) {
	return c.Send(ctx, protocol.Command{Type: cmdType, Params: params})
}

// Ping checks that the server answers get_scene_info.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	resp, err := c.Call(ctx, "get_scene_info", nil)
	if err != nil {
		return 0, err
	}
	if !resp.OK() {
		return 0, fmt.Errorf("server answered with an error: %s", resp.Message)
	}
	return time.Since(start), nil
}

// Close drops the connection. The next Send dials again.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.in = nil
	c.dec = nil
	return err
}

func (c *Client) dial(ctx context.Context) error {
	var lastErr error
	delay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return remote.Classify(ctx.Err(), Service)
			case <-time.After(delay):
			}
			delay *= 2
			if c.MaxRetryDelay > 0 && delay > c.MaxRetryDelay {
				delay = c.MaxRetryDelay
			}
		}

		d := net.Dialer{Timeout: c.dialTimeout()}
		conn, err := d.DialContext(ctx, "tcp", c.Addr)
		if err == nil {
			c.conn = conn
			c.in = &countingReader{r: conn}
			c.dec = json.NewDecoder(c.in)
			logging.Debug("Connected to server", zap.String("addr", c.Addr), zap.Int("attempt", attempt+1))
			return nil
		}

		lastErr = remote.NewNetworkError(Service, fmt.Sprintf("could not connect to %s", c.Addr), err)
		if !remote.IsRetryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) roundTrip(ctx context.Context, payload []byte) (protocol.Response, error) {
	deadline := time.Now().Add(c.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return protocol.Response{}, remote.NewNetworkError(Service, "failed to set deadline", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := c.conn.Write(payload); err != nil {
		return protocol.Response{}, c.ioError(ctx, "failed to send command", err)
	}

	var resp protocol.Response
	if err := c.dec.Decode(&resp); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return protocol.Response{}, c.ioError(ctx, "failed to read response", err)
		}
		return protocol.Response{}, remote.NewParseError(Service, "server sent an invalid response", err)
	}
	return resp, nil
}

// ioError reports cancellation as the context error; everything else,
// including an expired deadline, is classified as a transport failure.
func (c *Client) ioError(ctx context.Context, msg string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return remote.NewNetworkError(Service, msg, err)
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Client) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return DefaultDialTimeout
	}
	return c.DialTimeout
}
