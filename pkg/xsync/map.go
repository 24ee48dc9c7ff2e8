// Package xsync 提供并发安全的泛型容器。
package xsync

import (
	"sync"
	"sync/atomic"
)

// Map 基于 sync.Map 的泛型并发映射，额外维护元素数量
type Map[K comparable, V any] struct {
	m     sync.Map
	count atomic.Int64
}

// NewMap 创建并发映射
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{}
}

// Load 读取 key 对应的值
func (s *Map[K, V]) Load(key K) (V, bool) {
	val, ok := s.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return cast[V](val), true
}

// Store 写入键值对
func (s *Map[K, V]) Store(key K, value V) {
	if _, loaded := s.m.Swap(key, value); !loaded {
		s.count.Add(1)
	}
}

// LoadOrStore key 存在时返回已有值，否则写入 value
func (s *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	v, loaded := s.m.LoadOrStore(key, value)
	if !loaded {
		s.count.Add(1)
	}
	return cast[V](v), loaded
}

// LoadAndDelete 删除 key 并返回删除前的值
func (s *Map[K, V]) LoadAndDelete(key K) (V, bool) {
	v, loaded := s.m.LoadAndDelete(key)
	if !loaded {
		var zero V
		return zero, false
	}
	s.count.Add(-1)
	return cast[V](v), true
}

// Delete 删除 key
func (s *Map[K, V]) Delete(key K) {
	s.LoadAndDelete(key)
}

// CompareAndDelete 仅当 key 当前对应 old 时删除
// V 必须是可比较类型，否则运行时 panic
func (s *Map[K, V]) CompareAndDelete(key K, old V) bool {
	if s.m.CompareAndDelete(key, old) {
		s.count.Add(-1)
		return true
	}
	return false
}

// Range 遍历所有键值对，f 返回 false 时停止
func (s *Map[K, V]) Range(f func(key K, value V) bool) {
	s.m.Range(func(k, v any) bool {
		return f(k.(K), cast[V](v))
	})
}

// Len 返回元素数量
func (s *Map[K, V]) Len() int {
	return int(s.count.Load())
}

// Clear 删除所有元素
func (s *Map[K, V]) Clear() {
	s.m.Range(func(k, _ any) bool {
		if _, loaded := s.m.LoadAndDelete(k); loaded {
			s.count.Add(-1)
		}
		return true
	})
}

// cast 容忍存入的 nil 接口值
func cast[V any](v any) V {
	out, _ := v.(V)
	return out
}
