package prometheus

import "github.com/cockroachdb/errors"

var (
	ErrInvalidConfig = errors.New("prometheus: invalid config")
	// ErrMetricExists 同一 Client 上名称重复
	ErrMetricExists = errors.New("prometheus: metric already exists")
	ErrClientClosed = errors.New("prometheus: client closed")
)
