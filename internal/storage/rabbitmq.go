package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"match-engine-go/internal/config"
	"match-engine-go/internal/logger"
)

// MessageQueue 匹配事件总线：发件箱中继发布，重算消费者订阅
type MessageQueue interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
	StartConsumer(ctx context.Context, queueName string, prefetchCount int, handler func(context.Context, []byte) bool) error
	DeclareTopology() error
	Close() error
}

var _ MessageQueue = (*RabbitMQ)(nil)

var errNoChannel = errors.New("rabbitmq channel unavailable")

// RabbitMQ 单连接 + 通道池；声明过的拓扑在进程内只声明一次
type RabbitMQ struct {
	conn     *amqp.Connection
	channels sync.Pool
	cfg      *config.RabbitMQConfig

	declareMu sync.Mutex
	declared  map[string]struct{}

	publishMu sync.Mutex
}

// NewRabbitMQ 连接 RabbitMQ，失败时按指数退避共尝试 MaxRetries+1 次
func NewRabbitMQ(ctx context.Context, cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = config.GetDuration(cfg.RetryInterval, 5*time.Second) / 5
	conn, err := backoff.Retry(ctx, func() (*amqp.Connection, error) {
		return amqp.Dial(cfg.URL)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(cfg.MaxRetries)+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn().Err(err).Dur("wait", wait).Msg("连接RabbitMQ失败，稍后重试")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	mq := &RabbitMQ{
		conn:     conn,
		cfg:      cfg,
		declared: make(map[string]struct{}),
	}
	mq.channels.New = func() any {
		ch, err := conn.Channel()
		if err != nil {
			logger.Error().Err(err).Msg("创建RabbitMQ通道失败")
			return nil
		}
		return ch
	}

	// 先借还一次通道，尽早暴露权限或 vhost 问题
	if err := mq.withChannel(func(*amqp.Channel) error { return nil }); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info().Msg("RabbitMQ连接成功")
	return mq, nil
}

// withChannel 从池中借出可用通道执行 fn，结束后归还
func (r *RabbitMQ) withChannel(fn func(ch *amqp.Channel) error) error {
	ch, _ := r.channels.Get().(*amqp.Channel)
	if ch == nil || ch.IsClosed() {
		var err error
		if ch, err = r.conn.Channel(); err != nil {
			return fmt.Errorf("%w: %v", errNoChannel, err)
		}
	}
	err := fn(ch)
	if !ch.IsClosed() {
		r.channels.Put(ch)
	}
	return err
}

func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// declareOnce 同一 key 成功声明后不再重复声明
func (r *RabbitMQ) declareOnce(key string, fn func(ch *amqp.Channel) error) error {
	r.declareMu.Lock()
	defer r.declareMu.Unlock()
	if _, ok := r.declared[key]; ok {
		return nil
	}
	if err := r.withChannel(fn); err != nil {
		return err
	}
	r.declared[key] = struct{}{}
	logger.Debug().Str("declared", key).Msg("RabbitMQ拓扑已声明")
	return nil
}

// DeclareTopology 声明 topic 交换机 match.events、持久化重算队列及 profile.changed 绑定
func (r *RabbitMQ) DeclareTopology() error {
	exchange, queue, key := r.cfg.MatchEventsExchange, r.cfg.RecomputeQueue, r.cfg.ProfileChangedRoutingKey
	if exchange == "" || queue == "" {
		return fmt.Errorf("exchange and queue names are required")
	}

	if err := r.declareOnce("exchange:"+exchange, func(ch *amqp.Channel) error {
		return ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	}); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := r.declareOnce("queue:"+queue, func(ch *amqp.Channel) error {
		_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
		return err
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := r.declareOnce("binding:"+exchange+":"+queue+":"+key, func(ch *amqp.Channel) error {
		return ch.QueueBind(queue, key, exchange, false, nil)
	}); err != nil {
		return fmt.Errorf("bind %s to %s: %w", queue, exchange, err)
	}
	return nil
}

// PublishMessage 发布 JSON 消息
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}
	return r.withChannel(func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
			DeliveryMode: mode,
			ContentType:  "application/json",
			Body:         message,
			Timestamp:    time.Now().UTC(),
		})
	})
}

// StartConsumer 在独立通道上消费队列直到 ctx 结束；handler 返回 false 时消息重新入队
func (r *RabbitMQ) StartConsumer(ctx context.Context, queueName string, prefetchCount int, handler func(context.Context, []byte) bool) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: %v", errNoChannel, err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	go func() {
		defer ch.Close()
		log := logger.Logger.With().Str("queue", queueName).Logger()
		log.Info().Int("prefetch", prefetchCount).Msg("消费者已启动")
		defer log.Info().Msg("消费者已停止")

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warn().Msg("投递通道已关闭")
					return
				}
				var ackErr error
				if handler(ctx, d.Body) {
					ackErr = d.Ack(false)
				} else {
					ackErr = d.Nack(false, true)
				}
				if ackErr != nil {
					log.Error().Err(ackErr).Msg("确认消息失败")
				}
			}
		}
	}()
	return nil
}
