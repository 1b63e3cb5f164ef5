package matching

import (
	"runtime"

	"github.com/rs/zerolog"
)

// Option 引擎构造选项
type Option func(*Engine)

// WithPolicy 替换默认策略
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithLogger 设置日志记录器，默认不输出
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithWorkers 并发打分的协程数，<=0 时使用 GOMAXPROCS
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		e.workers = n
	}
}

// WithExplain 在结果中附带 Breakdown
func WithExplain(on bool) Option {
	return func(e *Engine) {
		e.explain = on
	}
}
