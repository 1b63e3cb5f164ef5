package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"match-engine-go/internal/config"
	"match-engine-go/internal/constants"
	"match-engine-go/internal/tracing"
)

var redisTracer = otel.Tracer("match-engine-go/storage/redis")

var errRedisNotReady = errors.New("redis client is not initialized")

// 匹配结果键读写频繁，span 只按比例采样；redisotel 已记录命令级指标
var redisSampleRates = []struct {
	prefix string
	rate   float64
}{
	{constants.AppPrefix + ":" + constants.MatchModulePrefix + ":" + constants.EntityResult + ":", 0.1},
}

const defaultRedisSampleRate = 0.05

func sampleRedisKey(key string) bool {
	if key == "" {
		return false
	}
	rate := defaultRedisSampleRate
	for _, r := range redisSampleRates {
		if strings.HasPrefix(key, r.prefix) {
			rate = r.rate
			break
		}
	}
	return rand.Float64() < rate
}

// Redis 匹配结果快速层，值为 JSON 字符串
type Redis struct {
	Client *redis.Client
}

func redisOptions(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:            cfg.Address,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:     time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:    time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}
}

// NewRedisAdapter 按配置连接 Redis，5 秒内 PING 不通则返回错误
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(redisOptions(cfg))
	r, err := NewRedisFromClient(client)
	if err != nil {
		client.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Address, err)
	}
	return r, nil
}

// NewRedisFromClient 包装已有客户端并挂上 OpenTelemetry 钩子
func NewRedisFromClient(client *redis.Client) (*Redis, error) {
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("instrument redis tracing: %w", err)
	}
	return &Redis{Client: client}, nil
}

func (r *Redis) Close() error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return errRedisNotReady
	}
	return r.Client.Ping(ctx).Err()
}

// startSpan 对采样命中的键开 span；未命中返回 nil span，调用方需判空
func (r *Redis) startSpan(ctx context.Context, op, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !sampleRedisKey(key) {
		return ctx, nil
	}
	ctx, span := redisTracer.Start(ctx, "Redis."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", strings.ToUpper(op)),
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
	)
	span.SetAttributes(attrs...)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Get 读取匹配结果，键不存在或已过期时返回 ErrNotFound
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", errRedisNotReady
	}
	ctx, span := r.startSpan(ctx, "Get", key)

	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		if span != nil {
			span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
		}
		endSpan(span, nil)
		return "", ErrNotFound
	}
	if span != nil && err == nil {
		span.SetAttributes(attribute.Int("db.redis.value_length", len(val)))
	}
	endSpan(span, err)
	return val, err
}

// Set 覆盖写入，后写者胜；expiration 为 0 表示不过期
func (r *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if r.Client == nil {
		return errRedisNotReady
	}
	ctx, span := r.startSpan(ctx, "Set", key,
		attribute.Int("db.redis.value_length", len(value)),
		attribute.Int64("db.redis.expiration_ms", expiration.Milliseconds()),
	)
	err := r.Client.Set(ctx, key, value, expiration).Err()
	endSpan(span, err)
	return err
}

// Del 删除键，键不存在不算错误
func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if r.Client == nil {
		return errRedisNotReady
	}
	if len(keys) == 0 {
		return nil
	}
	ctx, span := r.startSpan(ctx, "Del", keys[0], attribute.Int("db.redis.key_count", len(keys)))
	err := r.Client.Del(ctx, keys...).Err()
	endSpan(span, err)
	return err
}
