// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ipc

import (
	"context"
	"net"
	"os"

	stderrors "errors"

	"grimm.is/discoverer/internal/errors"
	"grimm.is/discoverer/internal/logging"
)

// QueueStats is the subset of internal/queue.Queue the service reports
// over the QUEUE request.
type QueueStats interface {
	PendingChecksCount() uint64
}

// UsageStatsSource is the subset of internal/worker.Pool the service
// reports over the USAGE_STATS request.
type UsageStatsSource interface {
	UsageStats() []float64
}

// Handlers bundles the engine-side callbacks a Server dispatches to.
// SNMPCacheReload, Shutdown and OnRequest are optional; a nil value
// skips that callback (neither request gets a reply either way), and a
// nil OnRequest skips the observation.
type Handlers struct {
	Queue           QueueStats
	Usage           UsageStatsSource
	SNMPCacheReload func() error
	Shutdown        func()

	// OnRequest, if set, is called once per dispatched request with the
	// code it was dispatched under, for request-count metrics.
	OnRequest func(code Code)
}

// Server is the ZBX_IPC_SERVICE_DISCOVERER-equivalent Unix domain socket
// service: one accept loop, one goroutine per connection, each
// connection served until the peer closes it or a frame read fails.
type Server struct {
	socketPath string
	handlers   Handlers
	log        *logging.Logger

	listener net.Listener
}

// NewServer builds a Server bound to socketPath, not yet listening.
func NewServer(socketPath string, handlers Handlers, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	return &Server{socketPath: socketPath, handlers: handlers, log: log}
}

// Start removes any stale socket file, binds a Unix listener restricted
// to the owning user, and begins accepting connections in the
// background. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrapf(err, errors.KindFatal, "ipc: listen on %s", s.socketPath)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return errors.Wrapf(err, errors.KindFatal, "ipc: chmod %s", s.socketPath)
	}
	s.listener = listener

	go s.acceptLoop(ctx)
	return nil
}

// Stop closes the listener, unblocking acceptLoop.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if stderrors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("ipc: accept", "err", err)
			return
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		if ctx.Err() != nil {
			return
		}
		req, err := ReadFrame(conn)
		if err != nil {
			// Peer closed or sent garbage; release the client per
			// spec.md §7's "IPC failure on outbound reply: logged,
			// client released" handling (symmetric on the read side).
			return
		}
		if !s.dispatch(conn, req) {
			return
		}
	}
}

// dispatch handles one request frame and writes its response. It
// returns false when the connection should be closed (SHUTDOWN, or a
// write failure).
func (s *Server) dispatch(conn net.Conn, req Frame) bool {
	if s.handlers.OnRequest != nil {
		s.handlers.OnRequest(req.Code)
	}

	switch req.Code {
	case CodeQueue:
		var pending uint64
		if s.handlers.Queue != nil {
			pending = s.handlers.Queue.PendingChecksCount()
		}
		return s.reply(conn, CodeQueue, EncodeQueueResponse(pending))

	case CodeUsageStats:
		var fractions []float64
		if s.handlers.Usage != nil {
			fractions = s.handlers.Usage.UsageStats()
		}
		return s.reply(conn, CodeUsageStatsResult, EncodeUsageStatsResult(fractions))

	case CodeSNMPCacheReload:
		if s.handlers.SNMPCacheReload != nil {
			if err := s.handlers.SNMPCacheReload(); err != nil {
				s.log.Warn("ipc: SNMP_CACHE_RELOAD failed", "err", err)
			}
		}
		return true

	case CodeShutdown:
		if s.handlers.Shutdown != nil {
			s.handlers.Shutdown()
		}
		return false

	default:
		s.log.Warn("ipc: unknown request code", "code", req.Code)
		return true
	}
}

func (s *Server) reply(conn net.Conn, code Code, payload []byte) bool {
	if err := WriteFrame(conn, code, payload); err != nil {
		s.log.Warn("ipc: write reply, client released", "err", err)
		return false
	}
	return true
}
