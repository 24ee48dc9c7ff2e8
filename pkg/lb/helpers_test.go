package lb

import (
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/lk2023060901/xdooria-lb/pkg/balancer"
	"github.com/stretchr/testify/require"
)

const ioTimeout = 3 * time.Second

// backend 测试用后端，accept 后先写 greeting 再回显
type backend struct {
	ln       net.Listener
	greeting string
	conns    chan net.Conn
}

func startBackend(t *testing.T, greeting string) *backend {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	b := &backend{ln: ln, greeting: greeting, conns: make(chan net.Conn, 16)}
	go b.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return b
}

func (b *backend) serve() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		b.conns <- conn
		go func() {
			if b.greeting != "" {
				if _, err := conn.Write([]byte(b.greeting)); err != nil {
					return
				}
			}
			_, _ = io.Copy(conn, conn)
		}()
	}
}

func (b *backend) nodeConfig(weight int) balancer.NodeConfig {
	return nodeConfig(b.ln.Addr().String(), weight)
}

func (b *backend) nextConn(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-b.conns:
		return c
	case <-time.After(ioTimeout):
		t.Fatal("backend did not receive a connection")
		return nil
	}
}

func nodeConfig(addr string, weight int) balancer.NodeConfig {
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	return balancer.NodeConfig{Host: host, Port: port, Weight: weight}
}

// deadAddr 返回一个当前没有监听者的地址
func deadAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func testConfig(nodes ...balancer.NodeConfig) *Config {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Timeout = 1
	cfg.MaxConnectionCount = 16
	cfg.ListenBacklog = 4
	cfg.Nodes = nodes
	return cfg
}

func openBalancer(t *testing.T, cfg *Config, opts ...Option) *Balancer {
	t.Helper()
	b, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, b.Open())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func dial(t *testing.T, b *Balancer) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", b.Server().Addr().String(), ioTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))
	return conn
}

func readN(t *testing.T, conn net.Conn, n int) string {
	t.Helper()
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return string(buf)
}
