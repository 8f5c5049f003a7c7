package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"fetchbot/internal/daemon"
	"fetchbot/internal/logging"
)

const (
	serviceName = "Fetchbot"
	socketMode  = 0o600

	defaultHistoryLimit = 20
)

// Server answers operator RPCs for one daemon on a Unix socket. Only the
// owning user may connect.
type Server struct {
	path     string
	logger   *slog.Logger
	listener net.Listener
	rpc      *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer binds the socket at path, replacing any stale file left by a
// previous run.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, socketMode); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket %s: %w", path, err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	srv := rpc.NewServer()
	svc := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := srv.RegisterName(serviceName, svc); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:     path,
		logger:   logger,
		listener: listener,
		rpc:      srv,
		ctx:      serverCtx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("ipc listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.WarnWithContext(s.logger, "ipc accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "fetchbot CLI commands may fail until the next accept"),
			)
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
	s.mu.Unlock()
}

// Close stops accepting, drops open client connections and removes the
// socket file. It is safe to call more than once.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()

	s.mu.Lock()
	open := s.conns
	s.conns = nil
	s.mu.Unlock()
	for conn := range open {
		_ = conn.Close()
	}
	s.wg.Wait()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(s.logger, "ipc socket cleanup failed", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "next daemon start replaces the stale socket"),
		)
	}
}

// service is the RPC receiver. Method signatures follow net/rpc rules.
type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("stop requested over ipc", logging.String(logging.FieldEventType, "daemon_stop_requested"))
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) Jobs(_ JobsRequest, resp *JobsResponse) error {
	resp.Jobs = s.daemon.Jobs()
	return nil
}

func (s *service) CancelJob(req CancelJobRequest, resp *CancelJobResponse) error {
	snap, err := s.daemon.CancelJob(req.Job)
	if err != nil {
		return err
	}
	resp.Job = snap
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	outcomes, counts, err := s.daemon.History(s.ctx, limit)
	if err != nil {
		return err
	}
	resp.Outcomes = outcomes
	resp.Counts = make(map[string]int, len(counts))
	for state, n := range counts {
		resp.Counts[string(state)] = n
	}
	return nil
}

func (s *service) Sweep(_ SweepRequest, resp *SweepResponse) error {
	result := s.daemon.Sweep(s.ctx)
	resp.Removed = result.Removed
	for _, failure := range result.Errors {
		resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", failure.Path, failure.Error))
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	if err != nil {
		resp.Message = fmt.Sprintf("%s: %v", message, err)
	}
	return nil
}
