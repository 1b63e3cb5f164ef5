// Package ratelimit 按身份限流，每个 key 一个令牌桶。
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter 每个 key 独立的令牌桶，长时间未使用的桶会被回收
type KeyedLimiter struct {
	mu      sync.Mutex
	m       map[string]*entry
	r       rate.Limit
	b       int
	idleTTL time.Duration
	now     func() time.Time
}

// NewKeyedLimiter 按每分钟请求数和突发容量创建限流器；burst <= 0 时取 qpm 的五分之一
func NewKeyedLimiter(qpm, burst int) *KeyedLimiter {
	if qpm <= 0 {
		qpm = 100
	}
	if burst <= 0 {
		burst = qpm / 5
		if burst <= 0 {
			burst = 1
		}
	}
	return &KeyedLimiter{
		m:       make(map[string]*entry),
		r:       rate.Limit(float64(qpm) / 60.0),
		b:       burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

func (kl *KeyedLimiter) limiterFor(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	if e, ok := kl.m[key]; ok {
		e.lastSeen = now
		return e.lim
	}
	e := &entry{lim: rate.NewLimiter(kl.r, kl.b), lastSeen: now}
	kl.m[key] = e
	return e.lim
}

// Allow 消耗 key 的一个令牌，桶空时返回 false
func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.limiterFor(key).AllowN(kl.now(), 1)
}

// RetryAfter 估算 key 下一个令牌可用前需要等待的时长
func (kl *KeyedLimiter) RetryAfter(key string) time.Duration {
	lim := kl.limiterFor(key)
	now := kl.now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return time.Minute
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

// Wait 阻塞直到 key 有可用令牌或 ctx 结束
func (kl *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return kl.limiterFor(key).Wait(ctx)
}

// Cleanup 回收超过 idleTTL 未使用的桶，返回回收数量
func (kl *KeyedLimiter) Cleanup() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	cutoff := kl.now().Add(-kl.idleTTL)
	n := 0
	for k, e := range kl.m {
		if e.lastSeen.Before(cutoff) {
			delete(kl.m, k)
			n++
		}
	}
	return n
}

// Len 当前桶数量
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.m)
}

// RunCleanup 按 interval 周期回收空闲桶，ctx 结束时退出
func (kl *KeyedLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			kl.Cleanup()
		}
	}
}
