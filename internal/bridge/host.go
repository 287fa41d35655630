package bridge

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/pkg/types"
)

// Forwarding failure reasons reported back to the extension. These name
// the failure mode, not the transport internals.
const (
	ReasonAppNotRunning    = "app_not_running"
	ReasonConnectTimeout   = "connect_timeout"
	ReasonResponseTimeout  = "response_timeout"
	ReasonInvalidResponse  = "invalid_response"
	ReasonConnectionClosed = "connection_closed"
	ReasonReadFailed       = "read_failed"
)

// Host is the native messaging endpoint the browser launches. It reads
// length-prefixed requests on stdin, forwards them to the local capture
// server, and writes length-prefixed responses on stdout. Stdout belongs
// to the protocol, so all logging goes to a side file.
type Host struct {
	cfg    config.BridgeConfig
	addr   string
	logger *log.Logger

	// dial is swappable in tests.
	dial func(addr string, timeout time.Duration) (net.Conn, error)
}

func NewHost(cfg config.BridgeConfig, logger *log.Logger) *Host {
	return &Host{
		cfg:    cfg,
		addr:   fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		logger: logger,
		dial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
	}
}

// Run processes requests until stdin closes. A framing failure is
// unrecoverable: the host reports it and returns the error so the
// process exits nonzero.
func (h *Host) Run(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	for {
		payload, err := ReadFrame(reader, h.cfg.HostMaxMessageBytes)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			h.logger.Error("stdin framing failed", "err", err)
			WriteFrameJSON(out, &types.BridgeResponse{ID: "unknown", Reason: ReasonReadFailed})
			return fmt.Errorf("read request frame: %w", err)
		}

		resp := h.process(payload)
		if err := WriteFrameJSON(out, resp); err != nil {
			return fmt.Errorf("write response frame: %w", err)
		}
	}
}

func (h *Host) process(payload []byte) *types.BridgeResponse {
	var req types.BridgeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.logger.Warn("request parse failed", "err", err)
		return &types.BridgeResponse{ID: "unknown", Reason: ReasonInvalidRequest}
	}

	if reason := ValidateRequest(&req, h.cfg); reason != "" {
		h.logger.Info("request rejected", "id", req.ID, "reason", reason)
		return &types.BridgeResponse{ID: req.ID, Reason: reason}
	}

	resp, reason := h.forward(&req)
	if reason != "" {
		h.logger.Warn("forward failed", "id", req.ID, "reason", reason)
		return &types.BridgeResponse{ID: req.ID, Reason: reason}
	}

	sanitizeResponse(resp, &req)
	return resp
}

// forward sends the request over the local control channel and waits
// for the matching response line.
func (h *Host) forward(req *types.BridgeRequest) (*types.BridgeResponse, string) {
	connectTimeout := time.Duration(h.cfg.ConnectTimeoutMS) * time.Millisecond
	conn, err := h.dial(h.addr, connectTimeout)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, ReasonAppNotRunning
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ReasonConnectTimeout
		}
		return nil, ReasonAppNotRunning
	}
	defer conn.Close()

	responseTimeout := time.Duration(h.cfg.ResponseTimeoutMS) * time.Millisecond
	conn.SetDeadline(time.Now().Add(responseTimeout))

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, ReasonInvalidRequest
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		return nil, classifyConnError(err)
	}

	line, err := bufio.NewReaderSize(conn, 64*1024).ReadBytes('\n')
	if err != nil {
		return nil, classifyConnError(err)
	}

	var resp types.BridgeResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, ReasonInvalidResponse
	}
	return &resp, ""
}

func classifyConnError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonResponseTimeout
	}
	return ReasonConnectionClosed
}

// sanitizeResponse flattens multi-line fields so the framed reply stays
// well formed for the extension, and backfills the page identity when
// the server omitted it.
func sanitizeResponse(resp *types.BridgeResponse, req *types.BridgeRequest) {
	if resp.Processed == nil {
		return
	}
	p := resp.Processed
	p.Content = strings.Join(strings.Fields(p.Content), " ")
	p.Excerpt = sanitizeExcerpt(p.Excerpt)
	if p.URL == "" {
		p.URL = req.URL
	}
	if p.Title == "" {
		p.Title = req.Title
	}
}
