package transport

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler 记录事件，可选回显
type recordingHandler struct {
	server *Server
	echo   bool

	mu           sync.Mutex
	connected    []ConnID
	disconnected map[ConnID]error
	received     []byte

	onReceived func(c *AcceptedClient, data []byte)
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{disconnected: make(map[ConnID]error)}
}

func (h *recordingHandler) OnConnected(c *AcceptedClient) {
	h.mu.Lock()
	h.connected = append(h.connected, c.ID())
	h.mu.Unlock()
}

func (h *recordingHandler) OnReceived(c *AcceptedClient, data []byte) {
	h.mu.Lock()
	h.received = append(h.received, data...)
	h.mu.Unlock()

	if h.onReceived != nil {
		h.onReceived(c, data)
	}
	if h.echo {
		_ = h.server.Send(c.ID(), data)
	}
}

func (h *recordingHandler) OnDisconnected(c *AcceptedClient, err error) {
	h.mu.Lock()
	h.disconnected[c.ID()] = err
	h.mu.Unlock()
}

func (h *recordingHandler) connectedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connected)
}

func (h *recordingHandler) disconnectedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.disconnected)
}

func newTestServer(t *testing.T, h *recordingHandler, maxConns int) *Server {
	t.Helper()

	cfg := DefaultServerConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.MaxConnectionCount = maxConns
	cfg.ListenBacklog = 1

	s, err := NewServer(cfg, WithServerHandler(h))
	require.NoError(t, err)
	h.server = s
	require.NoError(t, s.Open())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer_Echo(t *testing.T) {
	h := newRecordingHandler()
	h.echo = true
	s := newTestServer(t, h, 4)

	conn := dial(t, s)
	payload := []byte("hello transport")
	_, err := conn.Write(payload)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	assert.Eventually(t, func() bool { return h.connectedCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.ClientCount())
}

func TestServer_PeerCloseFiresDisconnect(t *testing.T) {
	h := newRecordingHandler()
	s := newTestServer(t, h, 4)

	conn := dial(t, s)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	_ = conn.Close()
	require.Eventually(t, func() bool { return h.disconnectedCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, s.ClientCount())

	h.mu.Lock()
	for _, err := range h.disconnected {
		assert.NoError(t, err, "peer close is not an error")
	}
	h.mu.Unlock()

	st := s.Stats()
	assert.Equal(t, 0, st.ArenaUsed)
	assert.Equal(t, 0, st.OpsInUse)
}

func TestServer_Admission(t *testing.T) {
	h := newRecordingHandler()
	s := newTestServer(t, h, 2)

	c1 := dial(t, s)
	_ = dial(t, s)
	_ = dial(t, s)

	require.Eventually(t, func() bool { return s.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	// 第三个连接等待许可，不会被注册
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, s.ClientCount())
	assert.Equal(t, 2, h.connectedCount())

	_ = c1.Close()
	require.Eventually(t, func() bool { return h.connectedCount() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, s.ClientCount())
	assert.Equal(t, uint64(3), s.Stats().Accepted)
}

func TestServer_SendPacketsAndDisconnect(t *testing.T) {
	h := newRecordingHandler()
	s := newTestServer(t, h, 4)

	conn := dial(t, s)
	require.Eventually(t, func() bool { return h.connectedCount() == 1 }, time.Second, 10*time.Millisecond)

	h.mu.Lock()
	id := h.connected[0]
	h.mu.Unlock()

	require.NoError(t, s.SendPackets(id, [][]byte{[]byte("ab"), []byte("cd"), []byte("ef")}))

	got := make([]byte, 6)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(got))
	assert.Equal(t, uint64(6), s.Stats().BytesSent)
	assert.Equal(t, 1, s.Stats().OpsInUse)

	require.NoError(t, s.Disconnect(id))
	require.Eventually(t, func() bool { return h.disconnectedCount() == 1 }, time.Second, 10*time.Millisecond)

	_, err = conn.Read(got)
	assert.Error(t, err)

	err = s.Send(id, []byte("x"))
	assert.True(t, errors.Is(err, ErrClientNotFound))
	assert.True(t, errors.Is(s.Disconnect(id), ErrClientNotFound))
}

func TestServer_DisconnectStaleIDKeepsReusedClient(t *testing.T) {
	h := newRecordingHandler()
	s := newTestServer(t, h, 1)

	first := dial(t, s)
	require.Eventually(t, func() bool { return h.connectedCount() == 1 }, time.Second, 10*time.Millisecond)
	h.mu.Lock()
	oldID := h.connected[0]
	h.mu.Unlock()

	_ = first.Close()
	require.Eventually(t, func() bool { return h.disconnectedCount() == 1 }, time.Second, 10*time.Millisecond)

	// 单连接上限下新连接复用同一个池化对象
	second := dial(t, s)
	require.Eventually(t, func() bool { return h.connectedCount() == 2 }, time.Second, 10*time.Millisecond)
	h.mu.Lock()
	newID := h.connected[1]
	h.mu.Unlock()
	require.NotEqual(t, oldID, newID)

	assert.True(t, errors.Is(s.Disconnect(oldID), ErrClientNotFound))
	assert.True(t, errors.Is(s.Send(oldID, []byte("x")), ErrClientNotFound))

	require.NoError(t, s.Send(newID, []byte("ok")))
	got := make([]byte, 2)
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(second, got)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
	assert.Equal(t, 1, s.ClientCount())
	assert.Equal(t, 1, h.disconnectedCount())
}

func TestServer_HandlerPanicClosesOnlyThatConnection(t *testing.T) {
	h := newRecordingHandler()
	h.onReceived = func(c *AcceptedClient, data []byte) {
		if string(data) == "boom" {
			panic("bad payload")
		}
	}
	s := newTestServer(t, h, 4)

	bad := dial(t, s)
	good := dial(t, s)
	require.Eventually(t, func() bool { return s.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	_, err := bad.Write([]byte("boom"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.disconnectedCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, s.IsRunning())
	assert.Equal(t, 1, s.ClientCount())

	h.mu.Lock()
	for _, err := range h.disconnected {
		assert.True(t, errors.Is(err, ErrHandlerPanic))
	}
	h.mu.Unlock()

	_, err = good.Write([]byte("ok"))
	assert.NoError(t, err)
}

func TestServer_Close(t *testing.T) {
	h := newRecordingHandler()

	cfg := DefaultServerConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.MaxConnectionCount = 8
	s, err := NewServer(cfg, WithServerHandler(h))
	require.NoError(t, err)
	require.NoError(t, s.Open())
	assert.ErrorIs(t, s.Open(), ErrAlreadyOpen)

	for i := 0; i < 3; i++ {
		_ = dial(t, s)
	}
	require.Eventually(t, func() bool { return h.connectedCount() == 3 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())
	assert.False(t, s.IsRunning())
	assert.False(t, s.IsBusy())
	assert.Equal(t, 0, s.ClientCount())
	assert.Equal(t, 3, h.disconnectedCount())

	// 关闭不可逆
	assert.ErrorIs(t, s.Open(), ErrClosed)
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(1, []byte("x")), ErrNotRunning)
}

func TestServer_ListenFailureAllowsRetry(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := DefaultServerConfig()
	cfg.Addr = ln.Addr().String()
	s, err := NewServer(cfg)
	require.NoError(t, err)

	assert.Error(t, s.Open())
	assert.Equal(t, StateIdle, s.State())
}
