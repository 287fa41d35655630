package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/pkg/types"
)

type stubHandler struct {
	fn func(ctx context.Context, req *types.BridgeRequest) (*types.BridgeResponse, error)
}

func (s *stubHandler) Handle(ctx context.Context, req *types.BridgeRequest) (*types.BridgeResponse, error) {
	return s.fn(ctx, req)
}

func startTestServer(t *testing.T, handler Handler, maxBytes int) net.Conn {
	t.Helper()

	cfg := config.Default().Bridge
	cfg.Port = 0
	if maxBytes > 0 {
		cfg.MaxMessageBytes = maxBytes
	}

	srv := NewServer(cfg, handler, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	})

	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for addr == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start listening")
		}
		addr = srv.Addr()
		if addr == "" {
			time.Sleep(5 * time.Millisecond)
		}
	}

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, line string) types.BridgeResponse {
	t.Helper()

	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp types.BridgeResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestServer_DispatchesToHandler(t *testing.T) {
	t.Parallel()

	handler := &stubHandler{fn: func(_ context.Context, req *types.BridgeRequest) (*types.BridgeResponse, error) {
		return &types.BridgeResponse{
			ID: req.ID,
			OK: true,
			Processed: &types.ProcessedPage{
				URL:     req.URL,
				Title:   "Saved Title",
				SavedID: "mem-1",
			},
		}, nil
	}}

	conn := startTestServer(t, handler, 0)
	resp := roundTrip(t, conn, `{"id":"req-1","url":"https://example.com/post","text":"body"}`)

	assert.True(t, resp.OK)
	assert.Equal(t, "req-1", resp.ID)
	require.NotNil(t, resp.Processed)
	assert.Equal(t, "mem-1", resp.Processed.SavedID)
}

func TestServer_SequentialRequestsOnOneConnection(t *testing.T) {
	t.Parallel()

	handler := &stubHandler{fn: func(_ context.Context, req *types.BridgeRequest) (*types.BridgeResponse, error) {
		return &types.BridgeResponse{ID: req.ID, OK: true}, nil
	}}

	conn := startTestServer(t, handler, 0)
	for _, id := range []string{"a", "b", "c"} {
		resp := roundTrip(t, conn, `{"id":"`+id+`","url":"https://example.com"}`)
		assert.Equal(t, id, resp.ID)
	}
}

func TestServer_InvalidJSON(t *testing.T) {
	t.Parallel()

	handler := &stubHandler{fn: func(_ context.Context, _ *types.BridgeRequest) (*types.BridgeResponse, error) {
		t.Error("handler should not be called")
		return nil, nil
	}}

	conn := startTestServer(t, handler, 0)
	resp := roundTrip(t, conn, `{not json`)

	assert.False(t, resp.OK)
	assert.Equal(t, "unknown", resp.ID)
	assert.Equal(t, ReasonInvalidRequest, resp.Reason)
}

func TestServer_MissingID(t *testing.T) {
	t.Parallel()

	handler := &stubHandler{fn: func(_ context.Context, _ *types.BridgeRequest) (*types.BridgeResponse, error) {
		t.Error("handler should not be called")
		return nil, nil
	}}

	conn := startTestServer(t, handler, 0)
	resp := roundTrip(t, conn, `{"url":"https://example.com"}`)

	assert.Equal(t, "unknown", resp.ID)
	assert.Equal(t, ReasonInvalidRequest, resp.Reason)
}

func TestServer_HandlerError(t *testing.T) {
	t.Parallel()

	handler := &stubHandler{fn: func(_ context.Context, _ *types.BridgeRequest) (*types.BridgeResponse, error) {
		return nil, errors.New("boom")
	}}

	conn := startTestServer(t, handler, 0)
	resp := roundTrip(t, conn, `{"id":"req-1","url":"https://example.com"}`)

	assert.False(t, resp.OK)
	assert.Equal(t, "req-1", resp.ID)
	assert.Equal(t, ReasonInternalError, resp.Reason)
}

func TestServer_MessageTooLarge(t *testing.T) {
	t.Parallel()

	handler := &stubHandler{fn: func(_ context.Context, req *types.BridgeRequest) (*types.BridgeResponse, error) {
		return &types.BridgeResponse{ID: req.ID, OK: true}, nil
	}}

	conn := startTestServer(t, handler, 1024)
	resp := roundTrip(t, conn, `{"id":"req-1","text":"`+strings.Repeat("a", 4096)+`"}`)

	assert.Equal(t, "unknown", resp.ID)
	assert.Equal(t, ReasonTooLarge, resp.Reason)

	// The connection is unusable after an oversized message.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := bufio.NewReader(conn).ReadBytes('\n')
	assert.Error(t, err)
}
