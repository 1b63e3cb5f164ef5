package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"match-engine-go/internal/api/handler"
)

// RegisterRoutes 注册 API 路由；protected 依次作用于除健康检查外的所有路由（IP 限流、鉴权、用户限流）
func RegisterRoutes(h *server.Hertz, matchHandler *handler.MatchHandler, protected ...app.HandlerFunc) {
	api := h.Group("/api/v1")

	// 健康检查不鉴权
	api.GET("/health", matchHandler.Health)

	authed := api.Group("", protected...)

	profiles := authed.Group("/profiles")
	profiles.POST("", matchHandler.CreateProfile)
	profiles.GET("", matchHandler.ListProfiles)
	profiles.GET("/:id", matchHandler.GetProfile)
	profiles.PUT("/:id", matchHandler.UpdateProfile)
	profiles.GET("/:id/matches", matchHandler.Matches)

	jobs := authed.Group("/jobs")
	jobs.POST("", matchHandler.CreateJob)
	jobs.GET("", matchHandler.ListJobs)
	jobs.PATCH("/:id/status", matchHandler.SetJobStatus)

	match := authed.Group("/match")
	match.POST("/preview", matchHandler.Preview)
	match.GET("/stats", matchHandler.Stats)
}
