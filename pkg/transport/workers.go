package transport

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-lb/pkg/logger"
	"github.com/panjf2000/ants/v2"
)

// WorkerPool 运行接收循环与事件回调的协程池
type WorkerPool struct {
	pool *ants.Pool
}

// NewWorkerPool 创建协程池，size <= 0 表示不限制
func NewWorkerPool(size int, l logger.Logger) (*WorkerPool, error) {
	l = logger.OrNoop(l)
	if size <= 0 {
		size = -1
	}

	p, err := ants.NewPool(size,
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(v any) {
			l.Error("worker panic", "panic", v)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "transport: create worker pool")
	}
	return &WorkerPool{pool: p}, nil
}

// Submit 提交任务，池满时阻塞等待空闲协程
func (w *WorkerPool) Submit(task func()) error {
	return w.pool.Submit(task)
}

// Running 正在运行的协程数
func (w *WorkerPool) Running() int {
	return w.pool.Running()
}

// Release 释放协程池
func (w *WorkerPool) Release() {
	w.pool.Release()
}

var (
	sharedOnce    sync.Once
	sharedWorkers *WorkerPool
	sharedErr     error
)

// sharedClientWorkers 未指定协程池的客户端共用一个不限大小的池
func sharedClientWorkers() (*WorkerPool, error) {
	sharedOnce.Do(func() {
		sharedWorkers, sharedErr = NewWorkerPool(0, nil)
	})
	return sharedWorkers, sharedErr
}
