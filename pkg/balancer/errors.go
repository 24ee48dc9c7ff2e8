package balancer

import "github.com/cockroachdb/errors"

var (
	// ErrNoAvailableNode 没有可选节点（全部失败或禁用）
	ErrNoAvailableNode = errors.New("balancer: no available node")

	ErrInvalidConfig   = errors.New("balancer: invalid config")
	ErrUnknownStrategy = errors.New("balancer: unknown strategy")
	ErrNodeNotFound    = errors.New("balancer: node not found")
)
