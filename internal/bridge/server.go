package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/pkg/types"
)

// Handler processes one capture request. A returned error becomes an
// internal_error response; expected rejections should be encoded in the
// response itself.
type Handler interface {
	Handle(ctx context.Context, req *types.BridgeRequest) (*types.BridgeResponse, error)
}

// Server accepts local connections from the native messaging host and
// processes newline-delimited JSON capture requests. It binds to
// loopback only.
type Server struct {
	cfg     config.BridgeConfig
	handler Handler
	logger  *log.Logger

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(cfg config.BridgeConfig, handler Handler, logger *log.Logger) *Server {
	return &Server{cfg: cfg, handler: handler, logger: logger}
}

// Addr returns the bound address, or "" before Serve has started
// listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve listens until ctx is cancelled or Close is called. Each
// connection is handled on its own goroutine; requests within a
// connection are processed sequentially.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on bridge port: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("bridge listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept bridge connection: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops the listener. In-flight connections finish on their own.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	initial := 64 * 1024
	if s.cfg.MaxMessageBytes < initial {
		initial = s.cfg.MaxMessageBytes
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, initial), s.cfg.MaxMessageBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.dispatch(ctx, line)
		if err := s.writeResponse(conn, resp); err != nil {
			s.logger.Warn("bridge write failed", "err", err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			// The peer sent something beyond the channel cap. Reject and
			// drop the connection; the stream position is unrecoverable.
			s.writeResponse(conn, &types.BridgeResponse{ID: "unknown", Reason: ReasonTooLarge})
			s.logger.Warn("bridge message exceeded size cap", "cap", s.cfg.MaxMessageBytes)
			return
		}
		s.logger.Debug("bridge connection closed", "err", err)
	}
}

func (s *Server) dispatch(ctx context.Context, line []byte) *types.BridgeResponse {
	var req types.BridgeRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return &types.BridgeResponse{ID: "unknown", Reason: ReasonInvalidRequest}
	}
	if req.ID == "" {
		return &types.BridgeResponse{ID: "unknown", Reason: ReasonInvalidRequest}
	}

	resp, err := s.handler.Handle(ctx, &req)
	if err != nil {
		s.logger.Error("capture handler failed", "id", req.ID, "url", req.URL, "err", err)
		return &types.BridgeResponse{ID: req.ID, Reason: ReasonInternalError}
	}
	return resp
}

func (s *Server) writeResponse(conn net.Conn, resp *types.BridgeResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal bridge response: %w", err)
	}
	payload = append(payload, '\n')
	_, err = conn.Write(payload)
	return err
}
