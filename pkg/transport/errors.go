package transport

import "github.com/cockroachdb/errors"

var (
	// 配置错误
	ErrInvalidConfig = errors.New("transport: invalid config")
	ErrInvalidAddr   = errors.New("transport: invalid address")

	// 状态错误
	ErrAlreadyOpen = errors.New("transport: already open")
	ErrClosed      = errors.New("transport: closed")
	ErrNotRunning  = errors.New("transport: not running")

	// 连接错误
	ErrClientNotFound = errors.New("transport: client not found")
	ErrNilConn        = errors.New("transport: nil connection")
	ErrDialFailed     = errors.New("transport: dial failed")
	ErrHandlerPanic   = errors.New("transport: handler panic")
)
