package logger

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttled 限制同一类日志的输出频率
// 接入循环和转发热路径上的重复告警通过它输出，避免故障期间日志刷屏
type Throttled struct {
	logger  Logger
	limiter *rate.Limiter
}

// NewThrottled 每 interval 最多输出 burst 条日志
func NewThrottled(l Logger, interval time.Duration, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		logger:  OrNoop(l),
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

// Warn 未超出频率时输出 warn 日志，返回是否实际输出
func (t *Throttled) Warn(msg string, keysAndValues ...interface{}) bool {
	if !t.limiter.Allow() {
		return false
	}
	t.logger.Warn(msg, keysAndValues...)
	return true
}

// Error 未超出频率时输出 error 日志，返回是否实际输出
func (t *Throttled) Error(msg string, keysAndValues ...interface{}) bool {
	if !t.limiter.Allow() {
		return false
	}
	t.logger.Error(msg, keysAndValues...)
	return true
}
