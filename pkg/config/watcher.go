// pkg/config/watcher.go
package config

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Watcher 配置监听器（用于热更新）
// 文件变化后重新解析为 T，并按注册顺序触发回调
type Watcher[T any] struct {
	mgr       Manager
	mu        sync.RWMutex
	config    *T
	callbacks []func(*T)
	onError   func(error)
	closed    atomic.Bool
}

// NewWatcher 加载 path 并开始监听（泛型版本）
func NewWatcher[T any](path string, opts ...Option) (*Watcher[T], error) {
	mgr := NewManager(opts...)
	if err := mgr.LoadFile(path); err != nil {
		return nil, err
	}

	var cfg T
	if err := mgr.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	w := &Watcher[T]{
		mgr:    mgr,
		config: &cfg,
	}
	if err := mgr.Watch(w.reload); err != nil {
		return nil, errors.Wrap(err, "failed to watch config")
	}
	return w, nil
}

// GetConfig 获取当前配置（线程安全）
func (w *Watcher[T]) GetConfig() *T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnChange 注册配置变化回调
func (w *Watcher[T]) OnChange(callback func(*T)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// OnError 注册重新解析失败时的回调，失败时保留旧配置
func (w *Watcher[T]) OnError(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// reload viper 已重新读取文件，这里只负责解析和分发
func (w *Watcher[T]) reload() {
	if w.closed.Load() {
		return
	}
	var cfg T
	if err := w.mgr.Unmarshal(&cfg); err != nil {
		w.mu.RLock()
		onError := w.onError
		w.mu.RUnlock()
		if onError != nil {
			onError(err)
		}
		return
	}

	w.mu.Lock()
	if w.closed.Load() {
		w.mu.Unlock()
		return
	}
	w.config = &cfg
	callbacks := append([]func(*T){}, w.callbacks...)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(&cfg)
	}
}

// Close 停止分发变更，之后的文件事件被忽略
// viper 没有取消监听的接口，底层 fsnotify 协程随进程退出
func (w *Watcher[T]) Close() error {
	w.closed.Store(true)
	w.mu.Lock()
	w.callbacks = nil
	w.onError = nil
	w.mu.Unlock()
	return nil
}
