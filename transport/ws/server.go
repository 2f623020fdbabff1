package ws

import (
	"chat-relay/contract"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handler owns an upgraded connection until HandleConn returns.
type Handler interface {
	HandleConn(ctx context.Context, conn contract.Conn)
}

// Server accepts websocket upgrades and hands every connection to its own
// goroutine. A failing connection never reaches the accept loop.
type Server struct {
	log          *slog.Logger
	addr         string
	handler      Handler
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	maxFrameSize int64
	listener     net.Listener
	http         *http.Server

	mu           sync.Mutex
	shuttingDown bool
	conns        sync.WaitGroup
}

func NewServer(log *slog.Logger, addr string, handler Handler, writeTimeout time.Duration, maxFrameSize int64) *Server {
	return &Server{
		log:     log,
		addr:    addr,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		writeTimeout: writeTimeout,
		maxFrameSize: maxFrameSize,
	}
}

// Listen binds the endpoint. It is the only fatal failure of the server.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown. Every session context derives
// from ctx, canceling it closes the live connections.
func (s *Server) Serve(ctx context.Context) error {
	s.http = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.log.Info("Relay listening", "addr", s.listener.Addr().String())
	if err := s.http.Serve(s.listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP registers the connection before upgrading so that Shutdown
// never misses a hijacked connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}
	s.conns.Add(1)
	s.mu.Unlock()
	defer s.conns.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade refused", "remote", r.RemoteAddr, "error", err)
		return
	}
	if s.maxFrameSize > 0 {
		conn.SetReadLimit(s.maxFrameSize)
	}

	stop := context.AfterFunc(r.Context(), func() { _ = conn.Close() })
	defer stop()
	s.handler.HandleConn(r.Context(), NewConn(conn, s.writeTimeout))
}

// Shutdown stops accepting, then waits for the handed over connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			return err
		}
	}
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
