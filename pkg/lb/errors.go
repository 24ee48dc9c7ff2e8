package lb

import "github.com/cockroachdb/errors"

var (
	// ErrAlreadyOpen 负载均衡器已经打开
	ErrAlreadyOpen = errors.New("lb: already open")

	// ErrNotOpen 负载均衡器尚未打开
	ErrNotOpen = errors.New("lb: not open")

	// ErrClosed 负载均衡器已关闭，不能再次打开
	ErrClosed = errors.New("lb: closed")
)
