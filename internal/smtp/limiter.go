package smtp

import (
	"sync"

	"golang.org/x/time/rate"
)

// ConnectionLimiter SMTP 连接限流器
//
// 同时限制并发会话数和每秒新建会话数；任一参数小于等于 0 表示不限制该项。
type ConnectionLimiter struct {
	maxConns int
	current  int
	mu       sync.Mutex
	newConns *rate.Limiter
}

// NewConnectionLimiter 创建连接限流器
//
// 参数:
//   - maxConns: 最大并发连接数
//   - maxRate: 每秒最大新建连接数
func NewConnectionLimiter(maxConns, maxRate int) *ConnectionLimiter {
	l := &ConnectionLimiter{maxConns: maxConns}
	if maxRate > 0 {
		l.newConns = rate.NewLimiter(rate.Limit(maxRate), maxRate)
	}
	return l
}

// Acquire 获取连接许可
//
// 返回值:
//   - bool: 是否获取成功
func (l *ConnectionLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 检查连接数限制
	if l.maxConns > 0 && l.current >= l.maxConns {
		return false
	}

	// 检查速率限制
	if l.newConns != nil && !l.newConns.Allow() {
		return false
	}

	l.current++
	return true
}

// Release 释放连接
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current 当前连接数
func (l *ConnectionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
