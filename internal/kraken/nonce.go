package kraken

import (
	"sync/atomic"
	"time"
)

// NonceSource 生成严格递增的 nonce。
type NonceSource interface {
	Next() int64
}

// NonceGenerator 以微秒时间戳为基准，保证并发调用下严格递增。
type NonceGenerator struct {
	last atomic.Int64
	now  func() time.Time
}

// NewNonceGenerator 创建基于系统时钟的 nonce 生成器。
func NewNonceGenerator() *NonceGenerator {
	return &NonceGenerator{now: time.Now}
}

// Next 返回 max(当前微秒, 上次+1)。
func (g *NonceGenerator) Next() int64 {
	for {
		last := g.last.Load()
		next := g.now().UnixMicro()
		if next <= last {
			next = last + 1
		}
		if g.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// processNonce 在进程内唯一，所有客户端共享，避免多个策略并发签名时撞 nonce。
var processNonce = NewNonceGenerator()

// ProcessNonce 返回进程级 nonce 生成器。
func ProcessNonce() *NonceGenerator {
	return processNonce
}
