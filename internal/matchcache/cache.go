// Package matchcache 两级匹配结果缓存：Redis 快速层 → MySQL 持久层 → 现场计算。
//
// 写入都是整体覆盖，同一键后写者胜；同一进程内并发未命中共享一次计算，
// 跨进程的重复计算结果一致，无需加锁。任一层读写失败只降级，不影响请求。
//
// 每条结果都带有计算时的档案版本，版本不一致按未命中处理，
// 因此档案编辑前开始的计算即使晚于清除才写入，也不会被新版本读到。
package matchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/matching"
	"match-engine-go/internal/storage"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/tracing"
)

var (
	// ErrMiss 两层都没有可用的结果
	ErrMiss = errors.New("matchcache: miss")
	// ErrStale ComputeFunc 发现档案在计算期间已被编辑：结果照常返回给调用方，但不写缓存
	ErrStale = errors.New("matchcache: profile changed during computation")
)

var tracer = otel.Tracer("match-engine-go/matchcache")

// FastStore 快速层，键不存在时返回 storage.ErrNotFound
type FastStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// PersistentStore 持久层，记录不存在时返回 storage.ErrNotFound
type PersistentStore interface {
	GetJobMatch(ctx context.Context, userID, profileID string) (*models.JobMatch, error)
	UpsertJobMatch(ctx context.Context, match *models.JobMatch) error
	DeleteJobMatch(ctx context.Context, userID, profileID string) error
}

// ComputeFunc 现场计算匹配结果；返回包装了 ErrStale 的错误时结果不入缓存
type ComputeFunc func(ctx context.Context) ([]matching.MatchResult, error)

// entry 快速层中保存的值
type entry struct {
	Version int                    `json:"version"`
	Matches []matching.MatchResult `json:"matches"`
}

// Result 一次读取的结果及其来源
type Result struct {
	Matches []matching.MatchResult
	Source  string // fast / persistent / computed
}

// Stats 命中统计
type Stats struct {
	FastHits       int64 `json:"fast_hits"`
	PersistentHits int64 `json:"persistent_hits"`
	Misses         int64 `json:"misses"`
	Errors         int64 `json:"errors"`
	StaleSkips     int64 `json:"stale_skips"` // 档案已变更而放弃写入的次数
}

// Config 缓存参数
type Config struct {
	FastTTL          time.Duration // 快速层过期时间
	PersistentMaxAge time.Duration // 持久层超过该时长视为未命中
}

// Cache 两级匹配结果缓存
type Cache struct {
	fast       FastStore // 可为 nil
	persistent PersistentStore
	cfg        Config
	logger     zerolog.Logger
	group      singleflight.Group
	now        func() time.Time

	fastHits       atomic.Int64
	persistentHits atomic.Int64
	misses         atomic.Int64
	errors         atomic.Int64
	staleSkips     atomic.Int64
}

// New 创建缓存；fast 为 nil 时只使用持久层
func New(fast FastStore, persistent PersistentStore, cfg Config, logger zerolog.Logger) *Cache {
	if cfg.FastTTL <= 0 {
		cfg.FastTTL = time.Hour
	}
	if cfg.PersistentMaxAge <= 0 {
		cfg.PersistentMaxAge = 7 * 24 * time.Hour
	}
	return &Cache{
		fast:       fast,
		persistent: persistent,
		cfg:        cfg,
		logger:     logger.With().Str("component", "matchcache").Logger(),
		now:        time.Now,
	}
}

// Get 依次查快速层、持久层，都未命中时调用 compute 并写回两层。
// version 是调用方读到的档案版本，只有版本相同的缓存才算命中。
func (c *Cache) Get(ctx context.Context, userID, profileID string, version int, compute ComputeFunc) (Result, error) {
	ctx, span := tracer.Start(ctx, "matchcache.Get")
	defer span.End()
	span.SetAttributes(attribute.Int("profile.version", version))

	if matches, err := c.getFast(ctx, userID, profileID, version); err == nil {
		c.fastHits.Add(1)
		span.SetAttributes(attribute.String("match.source", constants.SourceFast))
		return Result{Matches: matches, Source: constants.SourceFast}, nil
	}

	if matches, err := c.getPersistent(ctx, userID, profileID, version); err == nil {
		c.persistentHits.Add(1)
		span.SetAttributes(attribute.String("match.source", constants.SourcePersistent))
		c.setFast(ctx, userID, profileID, version, matches)
		return Result{Matches: matches, Source: constants.SourcePersistent}, nil
	}

	c.misses.Add(1)
	span.SetAttributes(attribute.String("match.source", constants.SourceComputed))

	key := fmt.Sprintf("%s:v%d", constants.MatchResultKey(userID, profileID), version)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		matches, err := compute(ctx)
		if errors.Is(err, ErrStale) {
			c.staleSkips.Add(1)
			c.logger.Info().Str("profile_id", profileID).Int("version", version).Msg("档案已变更，本次结果不写缓存")
			return nonNil(matches), nil
		}
		if err != nil {
			return nil, err
		}
		c.write(ctx, userID, profileID, version, matches)
		return nonNil(matches), nil
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return Result{}, fmt.Errorf("compute matches: %w", err)
	}
	return Result{Matches: v.([]matching.MatchResult), Source: constants.SourceComputed}, nil
}

// Peek 只读缓存，不触发计算；两层都没有该版本的结果时返回 ErrMiss
func (c *Cache) Peek(ctx context.Context, userID, profileID string, version int) (Result, error) {
	if matches, err := c.getFast(ctx, userID, profileID, version); err == nil {
		return Result{Matches: matches, Source: constants.SourceFast}, nil
	}
	if matches, err := c.getPersistent(ctx, userID, profileID, version); err == nil {
		return Result{Matches: matches, Source: constants.SourcePersistent}, nil
	}
	return Result{}, ErrMiss
}

// Store 用某一档案版本的新结果覆盖两层
func (c *Cache) Store(ctx context.Context, userID, profileID string, version int, matches []matching.MatchResult) error {
	return c.write(ctx, userID, profileID, version, nonNil(matches))
}

// Invalidate 删除两层中的结果
func (c *Cache) Invalidate(ctx context.Context, userID, profileID string) error {
	var errs []error
	if c.fast != nil {
		if err := c.fast.Del(ctx, constants.MatchResultKey(userID, profileID)); err != nil {
			errs = append(errs, fmt.Errorf("fast tier: %w", err))
		}
	}
	if err := c.persistent.DeleteJobMatch(ctx, userID, profileID); err != nil {
		errs = append(errs, fmt.Errorf("persistent tier: %w", err))
	}
	return errors.Join(errs...)
}

// Stats 返回命中统计快照
func (c *Cache) Stats() Stats {
	return Stats{
		FastHits:       c.fastHits.Load(),
		PersistentHits: c.persistentHits.Load(),
		Misses:         c.misses.Load(),
		Errors:         c.errors.Load(),
		StaleSkips:     c.staleSkips.Load(),
	}
}

func (c *Cache) getFast(ctx context.Context, userID, profileID string, version int) ([]matching.MatchResult, error) {
	if c.fast == nil {
		return nil, ErrMiss
	}
	raw, err := c.fast.Get(ctx, constants.MatchResultKey(userID, profileID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("profile_id", profileID).Msg("读取快速层失败，降级到持久层")
		return nil, err
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("profile_id", profileID).Msg("快速层数据损坏，按未命中处理")
		return nil, err
	}
	if e.Version != version {
		return nil, ErrMiss
	}
	return nonNil(e.Matches), nil
}

func (c *Cache) getPersistent(ctx context.Context, userID, profileID string, version int) ([]matching.MatchResult, error) {
	row, err := c.persistent.GetJobMatch(ctx, userID, profileID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("profile_id", profileID).Msg("读取持久层失败，改为现场计算")
		return nil, err
	}
	if row.Version != version || c.now().Sub(row.UpdatedAt) > c.cfg.PersistentMaxAge {
		return nil, ErrMiss
	}
	var matches []matching.MatchResult
	if err := json.Unmarshal(row.Matches, &matches); err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("profile_id", profileID).Msg("持久层数据损坏，按未命中处理")
		return nil, err
	}
	return nonNil(matches), nil
}

func (c *Cache) setFast(ctx context.Context, userID, profileID string, version int, matches []matching.MatchResult) {
	if c.fast == nil {
		return
	}
	raw, err := json.Marshal(entry{Version: version, Matches: matches})
	if err != nil {
		return
	}
	if err := c.fast.Set(ctx, constants.MatchResultKey(userID, profileID), string(raw), c.cfg.FastTTL); err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("profile_id", profileID).Msg("回填快速层失败")
	}
}

// write 两层都尝试写入，失败只记录；返回持久层错误供调用方决定是否重试
func (c *Cache) write(ctx context.Context, userID, profileID string, version int, matches []matching.MatchResult) error {
	raw, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("marshal matches: %w", err)
	}

	c.setFast(ctx, userID, profileID, version, matches)

	err = c.persistent.UpsertJobMatch(ctx, &models.JobMatch{
		UserID:    userID,
		ProfileID: profileID,
		Version:   version,
		Matches:   datatypes.JSON(raw),
		UpdatedAt: c.now().UTC(),
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn().Err(err).Str("profile_id", profileID).Msg("写入持久层失败")
		return err
	}
	return nil
}

func nonNil(m []matching.MatchResult) []matching.MatchResult {
	if m == nil {
		return []matching.MatchResult{}
	}
	return m
}
