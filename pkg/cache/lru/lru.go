// Package lru 提供带过期时间的 LRU 缓存，用于客户端 IP 到后端节点的亲和映射。
package lru

import (
	"container/list"
	"sync"
	"time"
)

// Config LRU 配置
type Config struct {
	// MaxSize 最大容量，<= 0 表示不限制
	MaxSize int
	// DefaultTTL 默认过期时间
	DefaultTTL time.Duration
	// CleanupInterval 清理间隔，<= 0 表示不启动后台清理，只在访问时淘汰
	CleanupInterval time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxSize:         65536,
		DefaultTTL:      time.Minute,
		CleanupInterval: 10 * time.Second,
	}
}

// LRU 基于内存的 LRU 缓存实现
type LRU[K comparable, V any] struct {
	config *Config
	cache  *list.List
	items  map[K]*list.Element
	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
	now    func() time.Time

	onEvict func(key K, value V)
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Option LRU 配置选项
type Option[K comparable, V any] func(*LRU[K, V])

// WithOnEvict 设置淘汰回调，回调在持锁状态下执行，不能再访问缓存
func WithOnEvict[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.onEvict = fn
	}
}

// WithClock 替换时间源
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.now = now
	}
}

// New 创建 LRU 缓存
func New[K comparable, V any](cfg *Config, opts ...Option[K, V]) *LRU[K, V] {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &LRU[K, V]{
		config: cfg,
		cache:  list.New(),
		items:  make(map[K]*list.Element),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if cfg.CleanupInterval > 0 {
		go c.cleanupLoop()
	} else {
		close(c.done)
	}
	return c
}

// cleanupLoop 后台定期移除过期条目
func (c *LRU[K, V]) cleanupLoop() {
	defer close(c.done)

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// removeExpired 移除过期条目
func (c *LRU[K, V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.cache.Back(); e != nil; {
		prev := e.Prev()
		ent := e.Value.(*entry[K, V])
		if now.After(ent.expiresAt) {
			c.removeElement(e)
		}
		e = prev
	}
}

// Get 获取值
func (c *LRU[K, V]) Get(key K) (V, bool) {
	return c.GetIf(key, nil)
}

// GetIf 获取值，valid 返回 false 时视为失效并淘汰
func (c *LRU[K, V]) GetIf(key K, valid func(V) bool) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	ent := elem.Value.(*entry[K, V])
	if c.now().After(ent.expiresAt) || (valid != nil && !valid(ent.value)) {
		c.removeElement(elem)
		return zero, false
	}
	c.cache.MoveToFront(elem)
	return ent.value, true
}

// Set 设置值（使用默认 TTL）
func (c *LRU[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL 设置值（自定义 TTL）
func (c *LRU[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value, ttl)
}

func (c *LRU[K, V]) set(key K, value V, ttl time.Duration) {
	expiresAt := c.now().Add(ttl)

	if elem, ok := c.items[key]; ok {
		c.cache.MoveToFront(elem)
		ent := elem.Value.(*entry[K, V])
		ent.value = value
		ent.expiresAt = expiresAt
		return
	}

	elem := c.cache.PushFront(&entry[K, V]{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	})
	c.items[key] = elem

	for c.config.MaxSize > 0 && c.cache.Len() > c.config.MaxSize {
		c.removeOldest()
	}
}

// GetOrCompute 原子获取或计算
// 已有条目未过期且通过 valid 校验时直接返回；compute 失败时不写入
func (c *LRU[K, V]) GetOrCompute(key K, valid func(V) bool, compute func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		if c.now().Before(ent.expiresAt) && (valid == nil || valid(ent.value)) {
			c.cache.MoveToFront(elem)
			return ent.value, nil
		}
		c.removeElement(elem)
	}

	value, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.set(key, value, c.config.DefaultTTL)
	return value, nil
}

// Delete 删除
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len 返回当前缓存大小
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Clear 清空缓存
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Init()
	c.items = make(map[K]*list.Element)
}

// Close 停止后台清理，可重复调用
func (c *LRU[K, V]) Close() error {
	c.once.Do(func() {
		close(c.stopCh)
	})
	<-c.done
	return nil
}

// removeOldest 移除最老的条目
func (c *LRU[K, V]) removeOldest() {
	elem := c.cache.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}

// removeElement 移除元素
func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.cache.Remove(elem)
	ent := elem.Value.(*entry[K, V])
	delete(c.items, ent.key)
	if c.onEvict != nil {
		c.onEvict(ent.key, ent.value)
	}
}
