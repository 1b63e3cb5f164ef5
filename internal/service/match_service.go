// Package service 组合档案、岗位存储与匹配引擎、结果缓存，供 HTTP 层和消息消费者共用。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/matchcache"
	"match-engine-go/internal/matching"
	"match-engine-go/internal/storage"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/tracing"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidStatus   = errors.New("invalid job status")
	ErrInvalidRecord   = errors.New("invalid record")
)

var tracer = otel.Tracer("match-engine-go/service")

// ProfileStore 档案存储
type ProfileStore interface {
	CreateProfile(ctx context.Context, userID string, data map[string]any) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID, profileID string, data map[string]any) (*models.Profile, error)
	GetProfile(ctx context.Context, userID, profileID string) (*models.Profile, error)
	ListProfiles(ctx context.Context, userID string) ([]models.Profile, error)
}

// JobStore 岗位存储
type JobStore interface {
	SaveJob(ctx context.Context, data map[string]any) (*models.Job, error)
	ListActiveJobs(ctx context.Context) ([]models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID, status string) error
}

// MatchCache 匹配结果缓存
type MatchCache interface {
	Get(ctx context.Context, userID, profileID string, version int, compute matchcache.ComputeFunc) (matchcache.Result, error)
	Store(ctx context.Context, userID, profileID string, version int, matches []matching.MatchResult) error
	Invalidate(ctx context.Context, userID, profileID string) error
	Stats() matchcache.Stats
}

// MatchResponse 某档案的匹配结果
type MatchResponse struct {
	ProfileID string                 `json:"profile_id"`
	Source    string                 `json:"source"`
	Count     int                    `json:"count"`
	Matches   []matching.MatchResult `json:"matches"`
}

// MatchService 匹配业务入口
type MatchService struct {
	profiles     ProfileStore
	jobs         JobStore
	cache        MatchCache
	engine       *matching.Engine
	matchTimeout time.Duration
	logger       zerolog.Logger
}

// NewMatchService 创建服务；matchTimeout 为 0 时不额外限制单次计算时长
func NewMatchService(profiles ProfileStore, jobs JobStore, cache MatchCache, engine *matching.Engine, matchTimeout time.Duration, logger zerolog.Logger) *MatchService {
	return &MatchService{
		profiles:     profiles,
		jobs:         jobs,
		cache:        cache,
		engine:       engine,
		matchTimeout: matchTimeout,
		logger:       logger.With().Str("component", "match_service").Logger(),
	}
}

// CreateProfile 新建档案
func (s *MatchService) CreateProfile(ctx context.Context, userID string, data map[string]any) (*models.Profile, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: profile body must be a JSON object", ErrInvalidRecord)
	}
	p, err := s.profiles.CreateProfile(ctx, userID, data)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID, p.ProfileID)
	return p, nil
}

// UpdateProfile 覆盖档案并清除旧的匹配结果
func (s *MatchService) UpdateProfile(ctx context.Context, userID, profileID string, data map[string]any) (*models.Profile, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: profile body must be a JSON object", ErrInvalidRecord)
	}
	p, err := s.profiles.UpdateProfile(ctx, userID, profileID, data)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID, profileID)
	return p, nil
}

// GetProfile 读取本人的档案
func (s *MatchService) GetProfile(ctx context.Context, userID, profileID string) (*models.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, userID, profileID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	return p, err
}

// ListProfiles 列出本人的档案
func (s *MatchService) ListProfiles(ctx context.Context, userID string) ([]models.Profile, error) {
	return s.profiles.ListProfiles(ctx, userID)
}

// Matches 返回档案的匹配结果。explain 为 true 时绕过缓存并附带评分明细。
func (s *MatchService) Matches(ctx context.Context, userID, profileID string, explain bool) (*MatchResponse, error) {
	ctx, span := tracer.Start(ctx, "MatchService.Matches")
	defer span.End()
	span.SetAttributes(attribute.Bool("matching.explain", explain))

	profile, version, err := s.loadProfile(ctx, userID, profileID)
	if err != nil {
		return nil, err
	}

	if explain {
		matches, err := s.compute(ctx, profile, true)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeScoring)
			return nil, err
		}
		return newResponse(profileID, constants.SourceComputed, matches), nil
	}

	res, err := s.cache.Get(ctx, userID, profileID, version, func(ctx context.Context) ([]matching.MatchResult, error) {
		matches, err := s.compute(ctx, profile, false)
		if err != nil {
			return nil, err
		}
		if !s.stillCurrent(ctx, userID, profileID, version) {
			return matches, fmt.Errorf("profile %s: %w", profileID, matchcache.ErrStale)
		}
		return matches, nil
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeScoring)
		return nil, err
	}
	span.SetAttributes(attribute.String("match.source", res.Source))
	return newResponse(profileID, res.Source, res.Matches), nil
}

// Recompute 重新计算并覆盖缓存，档案变更事件的消费者调用。
// 计算期间档案又被编辑时不写缓存，留给下一条变更事件。
func (s *MatchService) Recompute(ctx context.Context, userID, profileID string) (*MatchResponse, error) {
	ctx, span := tracer.Start(ctx, "MatchService.Recompute")
	defer span.End()

	profile, version, err := s.loadProfile(ctx, userID, profileID)
	if err != nil {
		return nil, err
	}
	matches, err := s.compute(ctx, profile, false)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeScoring)
		return nil, err
	}
	if !s.stillCurrent(ctx, userID, profileID, version) {
		s.logger.Info().Str("profile_id", profileID).Int("version", version).Msg("档案已变更，跳过写缓存")
		return newResponse(profileID, constants.SourceComputed, matches), nil
	}
	if err := s.cache.Store(ctx, userID, profileID, version, matches); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("store matches: %w", err)
	}
	s.logger.Info().
		Str("profile_id", profileID).
		Int("count", len(matches)).
		Msg("匹配结果已重新计算")
	return newResponse(profileID, constants.SourceComputed, matches), nil
}

// Preview 对请求中给出的档案和岗位直接打分，不读写缓存
func (s *MatchService) Preview(ctx context.Context, profile map[string]any, jobs []map[string]any, explain bool) ([]matching.MatchResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: profile is required", ErrInvalidRecord)
	}
	records := make([]matching.Record, 0, len(jobs))
	for _, j := range jobs {
		records = append(records, matching.Record(j))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if explain {
		return s.engine.Explain(ctx, matching.Record(profile), records)
	}
	return s.engine.Match(ctx, matching.Record(profile), records)
}

// CreateJob 新建或覆盖岗位；岗位变更不会清除已缓存的匹配结果，过期后自然刷新
func (s *MatchService) CreateJob(ctx context.Context, data map[string]any) (*models.Job, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: job body must be a JSON object", ErrInvalidRecord)
	}
	if status, ok := data["status"].(string); ok && !validStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.jobs.SaveJob(ctx, data)
}

// ListJobs 列出 active 岗位
func (s *MatchService) ListJobs(ctx context.Context) ([]models.Job, error) {
	return s.jobs.ListActiveJobs(ctx)
}

// SetJobStatus 修改岗位状态，只接受 active / closed
func (s *MatchService) SetJobStatus(ctx context.Context, jobID, status string) error {
	if !validStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	err := s.jobs.UpdateJobStatus(ctx, jobID, strings.ToLower(status))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrJobNotFound
	}
	return err
}

// CacheStats 缓存命中统计
func (s *MatchService) CacheStats() matchcache.Stats {
	return s.cache.Stats()
}

// loadProfile 读取档案内容及其版本
func (s *MatchService) loadProfile(ctx context.Context, userID, profileID string) (matching.Record, int, error) {
	p, err := s.profiles.GetProfile(ctx, userID, profileID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, ErrProfileNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	rec, err := p.Record()
	if err != nil {
		return nil, 0, err
	}
	return matching.Record(rec), p.Version, nil
}

// stillCurrent 档案仍是 version 版本；读不到时按已变更处理
func (s *MatchService) stillCurrent(ctx context.Context, userID, profileID string, version int) bool {
	p, err := s.profiles.GetProfile(ctx, userID, profileID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("profile_id", profileID).Msg("复查档案版本失败")
		}
		return false
	}
	return p.Version == version
}

func (s *MatchService) compute(ctx context.Context, profile matching.Record, explain bool) ([]matching.MatchResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.jobs.ListActiveJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	jobs := make([]matching.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].Record()
		if err != nil {
			// 单个岗位数据损坏不影响其他岗位
			s.logger.Warn().Err(err).Str("job_id", rows[i].JobID).Msg("岗位数据无法解析，跳过")
			continue
		}
		jobs = append(jobs, matching.Record(rec))
	}

	if explain {
		return s.engine.Explain(ctx, profile, jobs)
	}
	return s.engine.Match(ctx, profile, jobs)
}

func (s *MatchService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.matchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.matchTimeout)
}

func (s *MatchService) invalidate(ctx context.Context, userID, profileID string) {
	if err := s.cache.Invalidate(ctx, userID, profileID); err != nil {
		s.logger.Warn().Err(err).Str("profile_id", profileID).Msg("清除匹配缓存失败")
	}
}

func newResponse(profileID, source string, matches []matching.MatchResult) *MatchResponse {
	if matches == nil {
		matches = []matching.MatchResult{}
	}
	return &MatchResponse{
		ProfileID: profileID,
		Source:    source,
		Count:     len(matches),
		Matches:   matches,
	}
}

func validStatus(status string) bool {
	switch strings.ToLower(status) {
	case constants.JobStatusActive, constants.JobStatusClosed:
		return true
	}
	return false
}
