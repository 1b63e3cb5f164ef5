// Package scheduler 定时清理：过期的持久层匹配结果和已发送的发件箱消息。
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Cleaner 清理操作，由 storage.MySQL 实现
type Cleaner interface {
	DeleteStaleJobMatches(ctx context.Context, before time.Time) (int64, error)
	PurgeSentOutbox(ctx context.Context, before time.Time) (int64, error)
}

// Options 调度参数
type Options struct {
	StaleMatchSpec   string // cron 表达式，空字符串表示不调度
	OutboxPurgeSpec  string
	PersistentMaxAge time.Duration
	OutboxRetention  time.Duration
	JobTimeout       time.Duration
}

// Scheduler 定时任务调度
type Scheduler struct {
	cron    *cron.Cron
	cleaner Cleaner
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// New 注册清理任务，cron 表达式不合法时返回错误
func New(cleaner Cleaner, logger zerolog.Logger, opts Options) (*Scheduler, error) {
	if opts.PersistentMaxAge <= 0 {
		opts.PersistentMaxAge = 7 * 24 * time.Hour
	}
	if opts.OutboxRetention <= 0 {
		opts.OutboxRetention = 72 * time.Hour
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = time.Minute
	}

	log := logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log}
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		cleaner: cleaner,
		opts:    opts,
		logger:  log,
		now:     time.Now,
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (int64, error)
	}{
		{"stale_matches", opts.StaleMatchSpec, s.CleanStaleMatches},
		{"outbox_purge", opts.OutboxPurgeSpec, s.PurgeOutbox},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, s.wrap(j.name, j.run)); err != nil {
			return nil, fmt.Errorf("invalid cron spec %q for %s: %w", j.spec, j.name, err)
		}
	}
	return s, nil
}

// Start 后台启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("定时任务已启动")
}

// Stop 停止调度，等待运行中的任务结束或 ctx 超时
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("等待定时任务结束超时")
	}
}

// CleanStaleMatches 删除超过 PersistentMaxAge 未更新的匹配结果
func (s *Scheduler) CleanStaleMatches(ctx context.Context) (int64, error) {
	return s.cleaner.DeleteStaleJobMatches(ctx, s.now().UTC().Add(-s.opts.PersistentMaxAge))
}

// PurgeOutbox 删除超过 OutboxRetention 的已发送消息
func (s *Scheduler) PurgeOutbox(ctx context.Context) (int64, error) {
	return s.cleaner.PurgeSentOutbox(ctx, s.now().UTC().Add(-s.opts.OutboxRetention))
}

func (s *Scheduler) wrap(name string, run func(context.Context) (int64, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
		defer cancel()
		start := time.Now()
		n, err := run(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("定时任务执行失败")
			return
		}
		s.logger.Info().Str("job", name).Int64("deleted", n).Dur("took", time.Since(start)).Msg("定时任务完成")
	}
}

// cronLogger 把 cron 的日志接到 zerolog
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
