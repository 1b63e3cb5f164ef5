package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"match-engine-go/internal/api/middleware"
	"match-engine-go/internal/matchcache"
	"match-engine-go/internal/matching"
	"match-engine-go/internal/service"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/tracing"
)

// MatchService 处理器依赖的业务接口，由 service.MatchService 实现
type MatchService interface {
	CreateProfile(ctx context.Context, userID string, data map[string]any) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID, profileID string, data map[string]any) (*models.Profile, error)
	GetProfile(ctx context.Context, userID, profileID string) (*models.Profile, error)
	ListProfiles(ctx context.Context, userID string) ([]models.Profile, error)
	Matches(ctx context.Context, userID, profileID string, explain bool) (*service.MatchResponse, error)
	Preview(ctx context.Context, profile map[string]any, jobs []map[string]any, explain bool) ([]matching.MatchResult, error)
	CreateJob(ctx context.Context, data map[string]any) (*models.Job, error)
	ListJobs(ctx context.Context) ([]models.Job, error)
	SetJobStatus(ctx context.Context, jobID, status string) error
	CacheStats() matchcache.Stats
}

// MatchHandler 档案、岗位与匹配相关的 HTTP 处理器
type MatchHandler struct {
	svc    MatchService
	logger zerolog.Logger
}

// NewMatchHandler 创建处理器
func NewMatchHandler(svc MatchService, logger zerolog.Logger) *MatchHandler {
	return &MatchHandler{
		svc:    svc,
		logger: logger.With().Str("component", "match_handler").Logger(),
	}
}

// PreviewRequest 临时打分请求
type PreviewRequest struct {
	Profile map[string]any   `json:"profile"`
	Jobs    []map[string]any `json:"jobs"`
	Explain bool             `json:"explain"`
}

// StatusRequest 岗位状态修改请求
type StatusRequest struct {
	Status string `json:"status"`
}

// Health GET /api/v1/health
func (h *MatchHandler) Health(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "ok"})
}

// CreateProfile POST /api/v1/profiles
func (h *MatchHandler) CreateProfile(ctx context.Context, c *app.RequestContext) {
	var data map[string]any
	if !h.bind(c, &data) {
		return
	}
	p, err := h.svc.CreateProfile(ctx, middleware.UserID(c), data)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, p)
}

// UpdateProfile PUT /api/v1/profiles/:id
func (h *MatchHandler) UpdateProfile(ctx context.Context, c *app.RequestContext) {
	var data map[string]any
	if !h.bind(c, &data) {
		return
	}
	p, err := h.svc.UpdateProfile(ctx, middleware.UserID(c), c.Param("id"), data)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, p)
}

// GetProfile GET /api/v1/profiles/:id
func (h *MatchHandler) GetProfile(ctx context.Context, c *app.RequestContext) {
	p, err := h.svc.GetProfile(ctx, middleware.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, p)
}

// ListProfiles GET /api/v1/profiles
func (h *MatchHandler) ListProfiles(ctx context.Context, c *app.RequestContext) {
	list, err := h.svc.ListProfiles(ctx, middleware.UserID(c))
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	if list == nil {
		list = []models.Profile{}
	}
	c.JSON(consts.StatusOK, utils.H{"count": len(list), "profiles": list})
}

// Matches GET /api/v1/profiles/:id/matches[?explain=true]
func (h *MatchHandler) Matches(ctx context.Context, c *app.RequestContext) {
	explain, _ := strconv.ParseBool(c.DefaultQuery("explain", "false"))
	resp, err := h.svc.Matches(ctx, middleware.UserID(c), c.Param("id"), explain)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, resp)
}

// CreateJob POST /api/v1/jobs
func (h *MatchHandler) CreateJob(ctx context.Context, c *app.RequestContext) {
	var data map[string]any
	if !h.bind(c, &data) {
		return
	}
	job, err := h.svc.CreateJob(ctx, data)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, job)
}

// ListJobs GET /api/v1/jobs
func (h *MatchHandler) ListJobs(ctx context.Context, c *app.RequestContext) {
	jobs, err := h.svc.ListJobs(ctx)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	c.JSON(consts.StatusOK, utils.H{"count": len(jobs), "jobs": jobs})
}

// SetJobStatus PATCH /api/v1/jobs/:id/status
func (h *MatchHandler) SetJobStatus(ctx context.Context, c *app.RequestContext) {
	var req StatusRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.SetJobStatus(ctx, c.Param("id"), req.Status); err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"id": c.Param("id"), "status": req.Status})
}

// Preview POST /api/v1/match/preview
func (h *MatchHandler) Preview(ctx context.Context, c *app.RequestContext) {
	var req PreviewRequest
	if !h.bind(c, &req) {
		return
	}
	results, err := h.svc.Preview(ctx, req.Profile, req.Jobs, req.Explain)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	if results == nil {
		results = []matching.MatchResult{}
	}
	c.JSON(consts.StatusOK, utils.H{"count": len(results), "matches": results})
}

// Stats GET /api/v1/match/stats
func (h *MatchHandler) Stats(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, h.svc.CacheStats())
}

func (h *MatchHandler) bind(c *app.RequestContext, v any) bool {
	body := c.Request.Body()
	if len(body) == 0 {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "request body is empty"})
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "invalid JSON body"})
		return false
	}
	return true
}

// fail 把业务错误映射为状态码，并记到当前请求的 span 上；5xx 另记错误日志
func (h *MatchHandler) fail(ctx context.Context, c *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, service.ErrProfileNotFound), errors.Is(err, service.ErrJobNotFound):
		status, msg = consts.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrInvalidRecord):
		status, msg = consts.StatusBadRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = consts.StatusGatewayTimeout, "matching timed out"
	case errors.Is(err, context.Canceled):
		status, msg = 499, "request cancelled"
	}
	tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)
	if status >= consts.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", string(c.Path())).Msg("请求处理失败")
	}
	c.JSON(status, utils.H{"error": msg})
}
