package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Handler dispatches a decoded request to a Response. message is the
// whole decoded JSON object; the handler reads its "command" field
// itself.
type Handler func(ctx context.Context, message map[string]interface{}) Response

// Server is a raw-TCP request/response server: one connection per
// request, read-to-EOF then write-one-object-then-close, following
// the teacher's accept-loop/graceful-shutdown shape in
// internal/shared/server.go but without its HTTP/websocket layer.
type Server struct {
	addr    string
	handler Handler
	logger  zerolog.Logger

	listener     net.Listener
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shuttingDown int32
}

// NewServer builds a Server bound to addr once Start is called.
func NewServer(addr string, handler Handler, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{addr: addr, handler: handler, logger: logger, ctx: ctx, cancel: cancel}
}

// Start binds the listener and runs the accept loop in a background
// goroutine. It returns once the listener is bound, not once it stops.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info().Str("addr", s.addr).Msg("server listening")

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.shuttingDown) == 1 {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("accept error")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	peer := conn.RemoteAddr().String()
	data, err := io.ReadAll(conn)
	if err != nil {
		s.logger.Debug().Str("peer", peer).Err(err).Msg("read request failed")
		return
	}

	var message map[string]interface{}
	var resp Response
	if err := json.Unmarshal(data, &message); err != nil {
		resp = ErrorResponse("No command provided.")
	} else {
		s.logger.Debug().Str("peer", peer).RawJSON("request", data).Msg("received request")
		resp = s.handler(s.ctx, message)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode response failed")
		return
	}
	if _, err := conn.Write(out); err != nil {
		s.logger.Debug().Str("peer", peer).Err(err).Msg("write response failed")
		return
	}
	s.logger.Debug().Str("peer", peer).RawJSON("response", out).Msg("responded")
}

// ListenAddr returns the address the server is bound to, useful when
// Start was called with a ":0" port for tests.
func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting new connections, cancels the handler
// context, and waits for in-flight connections to finish.
func (s *Server) Shutdown() error {
	atomic.StoreInt32(&s.shuttingDown, 1)
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.cancel()
	s.wg.Wait()
	return err
}
