package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/executor"
	"github.com/muurk/scenebridge/internal/journal"
	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/protocol"
)

// readChunk is the most a connection reads from its socket at once.
const readChunk = 4096

// serveConn runs the read, decode, dispatch, respond loop for one client.
// Only one command per connection is in flight at a time.
func (s *Server) serveConn(id string, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	logging.LogConnection(id, remote, "connection_accepted")

	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("Connection handler panicked",
				zap.String("conn_id", id),
				zap.Any("panic", rec),
			)
		}
		_ = conn.Close()
		s.untrack(id)
		logging.LogConnection(id, remote, "connection_closed")
	}()

	dec := protocol.NewDecoder(s.cfg.MaxBuffer)
	buf := make([]byte, readChunk)

	for s.running.Load() {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			s.metrics.RecordBytesRead(n)
			logging.LogRawBytes("received "+id, buf[:n])

			if ferr := dec.Feed(buf[:n]); ferr != nil {
				s.metrics.RecordDecodeError("buffer_limit")
				logging.Warn("Receive buffer limit exceeded", zap.String("conn_id", id), zap.Error(ferr))
				data, _ := protocol.Encode(protocol.FromError(ferr))
				_ = s.writeResponse(conn, data)
				return
			}
			if !s.dispatchBuffered(id, conn, dec) {
				return
			}
		}
		if err != nil {
			s.logReadEnd(id, err)
			return
		}
	}
}

// dispatchBuffered answers every complete command in dec. It returns false
// when the connection should close.
func (s *Server) dispatchBuffered(id string, conn net.Conn, dec *protocol.Decoder) bool {
	for {
		cmd, err := dec.Next()
		if errors.Is(err, protocol.ErrIncomplete) {
			return true
		}

		var data []byte
		var malformed *protocol.MalformedError
		var invalid *protocol.InvalidCommandError
		switch {
		case errors.As(err, &malformed):
			s.metrics.RecordDecodeError("malformed")
			data, _ = protocol.Encode(protocol.Failure("Invalid JSON: " + malformed.Err.Error()))
		case errors.As(err, &invalid):
			s.metrics.RecordDecodeError("invalid_command")
			data, _ = protocol.Encode(protocol.FromError(err))
		case err != nil:
			data, _ = protocol.Encode(protocol.FromError(err))
		default:
			data = s.process(id, "tcp", cmd)
		}

		if err := s.writeResponse(conn, data); err != nil {
			logging.Warn("Failed to write response", zap.String("conn_id", id), zap.Error(err))
			return false
		}
		if !s.running.Load() {
			return false
		}
	}
}

// process runs one command through the router and executor, encodes the
// response and records the status that will be sent.
func (s *Server) process(connID, transport string, cmd *protocol.Command) []byte {
	start := time.Now()
	data, resp := protocol.Encode(s.execute(cmd))
	elapsed := time.Since(start)

	s.metrics.RecordCommand(cmd.Type, resp.Status, elapsed.Seconds())
	logging.LogCommand(connID, cmd.Type, resp.Status, float64(elapsed.Microseconds())/1000)

	if s.journal != nil {
		_, err := s.journal.Record(journal.Entry{
			Time:       start,
			ConnID:     connID,
			Transport:  transport,
			Type:       cmd.Type,
			Params:     cmd.Params,
			Status:     resp.Status,
			Message:    resp.Message,
			DurationMs: float64(elapsed.Microseconds()) / 1000,
		})
		if err != nil {
			logging.Warn("Failed to journal command", zap.String("type", cmd.Type), zap.Error(err))
		}
	}
	return data
}

func (s *Server) execute(cmd *protocol.Command) protocol.Response {
	ctx := s.runContext()
	if !s.running.Load() || ctx.Err() != nil {
		return protocol.FromError(executor.ErrShuttingDown)
	}

	task, err := s.router.Resolve(ctx, cmd)
	if err != nil {
		return protocol.FromError(shutdownAware(ctx, err))
	}
	resp, err := s.exec.Submit(ctx, s.whileRunning(task))
	if err != nil {
		return protocol.FromError(shutdownAware(ctx, err))
	}
	return resp
}

// whileRunning wraps task so it fails with ErrShuttingDown instead of
// touching the scene when Stop ran after the task was queued.
func (s *Server) whileRunning(task executor.Task) executor.Task {
	return func() (any, error) {
		if !s.running.Load() {
			return nil, executor.ErrShuttingDown
		}
		return task()
	}
}

// runContext returns the context cancelled by Stop.
func (s *Server) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.ctx
}

// shutdownAware reports cancellation caused by Stop as ErrShuttingDown.
func shutdownAware(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return executor.ErrShuttingDown
	}
	return err
}

func (s *Server) writeResponse(conn net.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}

func (s *Server) logReadEnd(id string, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		logging.Debug("Client disconnected", zap.String("conn_id", id))
	case errors.As(err, &ne) && ne.Timeout():
		logging.Info("Client idle timeout", zap.String("conn_id", id), zap.Duration("timeout", s.cfg.ReadTimeout))
	case errors.Is(err, net.ErrClosed):
		logging.Debug("Connection closed by server", zap.String("conn_id", id))
	default:
		logging.Warn("Connection read failed", zap.String("conn_id", id), zap.Error(err))
	}
}
