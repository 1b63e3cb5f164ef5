// Package matching 岗位匹配引擎：门槛判定、信号提取、密度分档、组合打分与排序。
// 引擎本身无 I/O、无共享可变状态，可被并发调用。
package matching

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "match-engine-go/matching"

// Engine 匹配引擎，构造后只读
type Engine struct {
	policy  Policy
	logger  zerolog.Logger
	workers int
	explain bool

	norm      *Normalizer
	extractor *Extractor
	scorer    *Scorer
	ranker    *Ranker
	tracer    trace.Tracer

	// pass 和 score 可在测试中替换
	pass  func(ProfileSignals, JobSignals) (bool, GateReason)
	score func(ProfileSignals, JobSignals) Breakdown
}

// New 创建引擎，策略不合法时返回 ErrInvalidPolicy
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		policy:  DefaultPolicy(),
		logger:  zerolog.Nop(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	e.norm = NewNormalizer(e.policy.SkillSynonyms, e.policy.TitleCategories)
	e.extractor = NewExtractor(e.norm, e.policy.MaxFieldBytes, e.policy.MaxListItems)
	e.pass = NewGateEvaluator(e.policy).Passes
	e.scorer = NewScorer(e.policy, e.norm)
	e.ranker = NewRanker(e.policy.MinMatchThreshold, e.policy.MaxResults)
	e.score = e.scorer.Score
	e.tracer = otel.Tracer(tracerName)
	return e, nil
}

// Policy 返回引擎使用的策略副本
func (e *Engine) Policy() Policy {
	return e.policy
}

// Normalizer 暴露给调用方复用同一份词表
func (e *Engine) Normalizer() *Normalizer {
	return e.norm
}

// Match 为候选人计算排序后的匹配结果。
// 只有 ctx 被取消时返回错误；单个岗位异常按 ErrorScore 计分，不影响整批。
func (e *Engine) Match(ctx context.Context, profile Record, jobs []Record) ([]MatchResult, error) {
	return e.match(ctx, profile, jobs, e.explain)
}

// Explain 与 Match 相同，但总是附带 Breakdown
func (e *Engine) Explain(ctx context.Context, profile Record, jobs []Record) ([]MatchResult, error) {
	return e.match(ctx, profile, jobs, true)
}

func (e *Engine) match(ctx context.Context, profile Record, jobs []Record, explain bool) ([]MatchResult, error) {
	ctx, span := e.tracer.Start(ctx, "matching.Match", trace.WithAttributes(
		attribute.Int("matching.jobs", len(jobs)),
		attribute.Bool("matching.explain", explain),
	))
	defer span.End()

	ps := e.profileSignals(profile)

	// 每个岗位只写自己的下标，无需加锁
	slots := make([]*candidate, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = e.scoreJob(ps, jobs[i], i, explain)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("match cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("match cancelled: %w", err)
	}

	cands := make([]candidate, 0, len(jobs))
	for _, c := range slots {
		if c != nil {
			cands = append(cands, *c)
		}
	}
	results := e.ranker.Rank(cands)

	span.SetAttributes(
		attribute.Int("matching.scored", len(cands)),
		attribute.Int("matching.results", len(results)),
	)
	e.logger.Debug().
		Int("jobs", len(jobs)).
		Int("scored", len(cands)).
		Int("results", len(results)).
		Msg("匹配计算完成")
	return results, nil
}

func (e *Engine) profileSignals(profile Record) (ps ProfileSignals) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("候选人信号提取异常，使用空信号")
			ps = ProfileSignals{Skills: map[string]float64{}}
		}
	}()
	return e.extractor.Profile(profile)
}

// scoreJob 返回 nil 表示岗位被排除 (非 active、未通过门槛，或提取和门槛阶段出错)。
// 只有打分阶段出错的岗位才给兜底分；门槛没有判定完的岗位不能出现在结果里。
func (e *Engine) scoreJob(ps ProfileSignals, rec Record, index int, explain bool) (c *candidate) {
	op := "extract"
	defer func() {
		if r := recover(); r != nil {
			jerr := &JobError{
				JobID: rec.str(e.policy.MaxFieldBytes, jobIDKeys...),
				Op:    op,
				Err:   fmt.Errorf("panic: %v", r),
			}
			if op != "score" {
				e.logger.Error().Err(jerr).Str("job_id", jerr.JobID).Str("op", op).Msg("岗位处理失败，已排除")
				c = nil
				return
			}
			c = e.fallback(rec, index, explain, jerr)
		}
	}()

	js := e.extractor.Job(rec)
	if !js.Active {
		return nil
	}
	op = "gate"
	if ok, reason := e.pass(ps, js); !ok {
		e.logger.Debug().Str("job_id", js.ID).Str("reason", string(reason)).Msg("岗位未通过硬性门槛")
		return nil
	}

	op = "score"
	b := e.score(ps, js)
	if math.IsNaN(b.Final) || math.IsInf(b.Final, 0) {
		return e.fallback(rec, index, explain, &JobError{JobID: js.ID, Op: op, Err: ErrNonFiniteScore})
	}

	res := resultFromJob(js, b.Final)
	if explain {
		bd := b
		res.Breakdown = &bd
	}
	return &candidate{index: index, result: res}
}

// fallback 记录错误并以 ErrorScore 计分
func (e *Engine) fallback(rec Record, index int, explain bool, jobErr *JobError) *candidate {
	e.logger.Warn().Err(jobErr).Str("job_id", jobErr.JobID).Str("op", jobErr.Op).
		Float64("error_score", e.policy.ErrorScore).Msg("岗位打分失败，使用兜底分数")
	score := e.policy.ErrorScore
	res := MatchResult{
		ID:              jobErr.JobID,
		Title:           rec.str(e.policy.MaxFieldBytes, "title"),
		Company:         rec.str(e.policy.MaxFieldBytes, jobCompanyKeys...),
		Requirements:    []string{},
		MatchScore:      score,
		MatchPercentage: Percentage(score),
	}
	if explain {
		res.Breakdown = &Breakdown{Fallback: true, Final: score}
	}
	return &candidate{index: index, result: res}
}

func resultFromJob(js JobSignals, score float64) MatchResult {
	return MatchResult{
		ID:              js.ID,
		Title:           js.Title,
		Company:         js.Company,
		Location:        js.LocationText,
		Salary:          js.Salary,
		Requirements:    js.Requirements,
		Remote:          js.Remote,
		MatchScore:      score,
		MatchPercentage: Percentage(score),
	}
}
