package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/muurk/scenebridge/internal/config"
	"github.com/muurk/scenebridge/internal/executor"
	"github.com/muurk/scenebridge/internal/handlers"
	"github.com/muurk/scenebridge/internal/protocol"
	"github.com/muurk/scenebridge/internal/remote"
	"github.com/muurk/scenebridge/internal/router"
	"github.com/muurk/scenebridge/internal/server"
)

// fakeServer answers every command on a connection with reply(cmd).
func fakeServer(t *testing.T, reply func(protocol.Command) []byte) (string, <-chan protocol.Command) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	seen := make(chan protocol.Command, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				dec := json.NewDecoder(conn)
				for {
					var cmd protocol.Command
					if err := dec.Decode(&cmd); err != nil {
						return
					}
					seen <- cmd
					out := reply(cmd)
					if out == nil {
						return
					}
					if _, err := conn.Write(out); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String(), seen
}

func TestNewClient(t *testing.T) {
	c := New("localhost", 9876)

	if c.Addr != "localhost:9876" {
		t.Errorf("Addr = %s, want localhost:9876", c.Addr)
	}
	if c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, DefaultTimeout)
	}
	if c.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", c.MaxRetries, DefaultMaxRetries)
	}

	c.SetTimeout(3 * time.Second)
	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", c.Timeout)
	}
}

func TestSend(t *testing.T) {
	addr, seen := fakeServer(t, func(cmd protocol.Command) []byte {
		return []byte(`{"status":"success","result":{"type":"` + cmd.Type + `"}}`)
	})

	c := NewWithAddr(addr)
	defer c.Close()

	resp, err := c.Call(context.Background(), "get_scene_info", nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, map[string]any{"type": "get_scene_info"}, resp.Result)

	cmd := <-seen
	assert.Equal(t, "get_scene_info", cmd.Type)
	assert.NotNil(t, cmd.Params, "params are always sent")
}

func TestSendReusesConnection(t *testing.T) {
	accepted := atomic.NewInt32(0)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Inc()
			go func(conn net.Conn) {
				defer conn.Close()
				dec := json.NewDecoder(conn)
				for {
					var cmd protocol.Command
					if dec.Decode(&cmd) != nil {
						return
					}
					conn.Write([]byte(`{"status":"success","result":null}`))
				}
			}(conn)
		}
	}()

	c := NewWithAddr(ln.Addr().String())
	defer c.Close()

	for i := 0; i < 3; i++ {
		_, err := c.Call(context.Background(), "get_scene_info", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), accepted.Load())
}

func TestSendErrorResponse(t *testing.T) {
	addr, _ := fakeServer(t, func(cmd protocol.Command) []byte {
		return []byte(`{"status":"error","message":"Unknown command type: ` + cmd.Type + `"}`)
	})

	c := NewWithAddr(addr)
	defer c.Close()

	resp, err := c.Call(context.Background(), "warp_drive", map[string]any{"speed": 9})
	require.NoError(t, err, "an error response is not a transport error")
	assert.False(t, resp.OK())
	assert.Equal(t, "Unknown command type: warp_drive", resp.Message)
	assert.EqualError(t, resp.Err(), "Unknown command type: warp_drive")
}

func TestSendEmptyType(t *testing.T) {
	c := NewWithAddr("127.0.0.1:1")
	_, err := c.Send(context.Background(), protocol.Command{})
	assert.EqualError(t, err, "command type cannot be empty")
}

func TestSendConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := NewWithAddr(addr)
	c.MaxRetries = 1
	c.RetryDelay = time.Millisecond

	_, err = c.Call(context.Background(), "get_scene_info", nil)
	require.Error(t, err)

	var re *remote.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, remote.ErrTypeConnectionRefused, re.Type)
	assert.Equal(t, Service, re.Service)
	assert.Contains(t, remote.Hint(err), "scenebridge serve")
}

func TestSendTimeout(t *testing.T) {
	addr, _ := fakeServer(t, func(protocol.Command) []byte {
		time.Sleep(time.Second)
		return []byte(`{"status":"success","result":null}`)
	})

	c := NewWithAddr(addr)
	c.Timeout = 50 * time.Millisecond
	defer c.Close()

	_, err := c.Call(context.Background(), "execute_code", map[string]any{"code": "while(true){}"})
	require.Error(t, err)

	var re *remote.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, remote.ErrTypeTimeout, re.Type)
}

func TestSendCancel(t *testing.T) {
	addr, _ := fakeServer(t, func(protocol.Command) []byte {
		time.Sleep(time.Second)
		return []byte(`{"status":"success","result":null}`)
	})

	c := NewWithAddr(addr)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := c.Call(ctx, "get_scene_info", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendInvalidResponse(t *testing.T) {
	addr, _ := fakeServer(t, func(protocol.Command) []byte {
		return []byte(`{"status":"maybe"}`)
	})

	c := NewWithAddr(addr)
	defer c.Close()

	_, err := c.Call(context.Background(), "get_scene_info", nil)
	require.Error(t, err)

	var re *remote.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, remote.ErrTypeParse, re.Type)
}

func TestSendReconnectsAfterServerClose(t *testing.T) {
	calls := atomic.NewInt32(0)
	addr, _ := fakeServer(t, func(protocol.Command) []byte {
		if calls.Inc() == 1 {
			return nil // hang up without answering
		}
		return []byte(`{"status":"success","result":null}`)
	})

	c := NewWithAddr(addr)
	defer c.Close()

	_, err := c.Call(context.Background(), "get_scene_info", nil)
	require.Error(t, err)

	resp, err := c.Call(context.Background(), "get_scene_info", nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestSendRedialsAfterIdleTimeout(t *testing.T) {
	flags := config.NewFlags(config.FeaturesConfig{})
	r := router.New(flags)
	require.NoError(t, handlers.RegisterAll(r, handlers.Deps{Features: flags, TempDir: t.TempDir()}))

	exec := executor.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = exec.Run(ctx, 5*time.Millisecond) }()

	srv := server.New(server.Config{
		Host:        "127.0.0.1",
		ReadTimeout: 300 * time.Millisecond,
		AcceptPoll:  50 * time.Millisecond,
	}, r, exec)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	c := NewWithAddr(srv.Addr().String())
	defer c.Close()

	_, err := c.Call(context.Background(), "get_scene_info", nil)
	require.NoError(t, err)

	// The server drops the idle connection; the client still holds it.
	require.Eventually(t, func() bool { return srv.ActiveConnections() == 0 }, 5*time.Second, 20*time.Millisecond)

	resp, err := c.Call(context.Background(), "get_scene_info", nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestSendResendsOnlyOnceAfterStaleConnection(t *testing.T) {
	calls := atomic.NewInt32(0)
	addr, _ := fakeServer(t, func(protocol.Command) []byte {
		if calls.Inc() == 1 {
			return []byte(`{"status":"success","result":null}`)
		}
		return nil // every later connection hangs up without answering
	})

	c := NewWithAddr(addr)
	defer c.Close()

	_, err := c.Call(context.Background(), "get_scene_info", nil)
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "get_scene_info", nil)
	require.Error(t, err)
	// One write on the stale connection and one after redialing
	assert.Equal(t, int32(3), calls.Load())
}

func TestPing(t *testing.T) {
	addr, _ := fakeServer(t, func(protocol.Command) []byte {
		return []byte(`{"status":"success","result":{"name":"Scene"}}`)
	})

	c := NewWithAddr(addr)
	defer c.Close()

	rtt, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}
