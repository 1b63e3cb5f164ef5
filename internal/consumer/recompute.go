// Package consumer 消费 profile.changed 事件，后台重算匹配结果并写入缓存。
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"match-engine-go/internal/service"
	"match-engine-go/internal/storage"
	"match-engine-go/internal/tracing"
)

// Subscriber 队列订阅，handler 返回 false 时消息重新入队
type Subscriber interface {
	StartConsumer(ctx context.Context, queueName string, prefetchCount int, handler func(context.Context, []byte) bool) error
}

// Recomputer 重算某档案的匹配结果
type Recomputer interface {
	Recompute(ctx context.Context, userID, profileID string) (*service.MatchResponse, error)
}

// Options 消费者参数
type Options struct {
	Queue         string
	Prefetch      int
	Workers       int
	MaxRetries    int           // 单条消息在本地重试的次数，超过后重新入队
	RetryInterval time.Duration // 首次重试间隔，之后指数增长
}

// RecomputeConsumer 档案变更事件消费者
type RecomputeConsumer struct {
	sub        Subscriber
	recomputer Recomputer
	opts       Options
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewRecomputeConsumer 创建消费者
func NewRecomputeConsumer(sub Subscriber, recomputer Recomputer, logger zerolog.Logger, opts Options) *RecomputeConsumer {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	return &RecomputeConsumer{
		sub:        sub,
		recomputer: recomputer,
		opts:       opts,
		logger:     logger.With().Str("component", "recompute_consumer").Str("queue", opts.Queue).Logger(),
		tracer:     otel.Tracer("match-engine-go/consumer"),
	}
}

// Start 启动 Workers 个消费者，ctx 结束时全部退出
func (c *RecomputeConsumer) Start(ctx context.Context) error {
	for i := 0; i < c.opts.Workers; i++ {
		if err := c.sub.StartConsumer(ctx, c.opts.Queue, c.opts.Prefetch, c.Handle); err != nil {
			return fmt.Errorf("start consumer %d: %w", i, err)
		}
	}
	c.logger.Info().Int("workers", c.opts.Workers).Msg("档案变更消费者已启动")
	return nil
}

// Handle 处理一条消息，返回 true 表示确认。
// 无法解析的消息和已删除的档案直接确认，其余失败在本地重试后重新入队。
func (c *RecomputeConsumer) Handle(ctx context.Context, body []byte) bool {
	ctx, span := c.tracer.Start(ctx, "consumer.Recompute", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var evt storage.ProfileChangedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		c.logger.Error().Err(err).Int("size", len(body)).Msg("无法解析档案变更事件，丢弃")
		return true
	}
	if evt.UserID == "" || evt.ProfileID == "" {
		c.logger.Error().Msg("档案变更事件缺少 user_id 或 profile_id，丢弃")
		return true
	}
	span.SetAttributes(
		attribute.String("profile.id", evt.ProfileID),
		attribute.Int("profile.version", evt.Version),
	)
	log := c.logger.With().Str("profile_id", evt.ProfileID).Int("version", evt.Version).Logger()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryInterval
	_, err := backoff.Retry(ctx, func() (*service.MatchResponse, error) {
		resp, err := c.recomputer.Recompute(ctx, evt.UserID, evt.ProfileID)
		if errors.Is(err, service.ErrProfileNotFound) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.opts.MaxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("重算匹配失败，准备重试")
		}),
	)

	switch {
	case err == nil:
		return true
	case errors.Is(err, service.ErrProfileNotFound):
		log.Warn().Msg("档案已不存在，跳过重算")
		return true
	default:
		tracing.RecordRabbitMQNack(span, evt.ProfileID, err.Error())
		log.Error().Err(err).Msg("重算匹配失败，消息重新入队")
		return false
	}
}
