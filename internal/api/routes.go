package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saradindusengupta/streamlit-healthcheck/internal/api/middleware"
	cfgpkg "github.com/saradindusengupta/streamlit-healthcheck/internal/config"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/health"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/monitor"
)

// RegisterRoutes 注册健康查询路由
func RegisterRoutes(
	r *gin.Engine,
	runner *health.Runner,
	mon *monitor.PageMonitor,
	rateCfg cfgpkg.RateLimitConfig,
	logger *zap.Logger,
) {
	if r == nil || runner == nil {
		return
	}

	handler := NewHealthHandler(runner, mon, logger)

	r.GET("/", handler.Root)

	grp := r.Group("/health")
	grp.Use(middleware.RateLimit(rateCfg, logger))

	grp.GET("", handler.GetHealth)
	grp.GET("/system", handler.GetSystem)
	grp.GET("/dependencies", handler.GetDependencies)
	grp.GET("/pages", handler.GetPages)
	grp.POST("/refresh", handler.Refresh)
	grp.DELETE("/pages", handler.ClearAllPageErrors)
	grp.DELETE("/pages/:page", handler.ClearPageErrors)

	if logger != nil {
		logger.Info("health routes registered", zap.Int("endpoints", 8))
	}
}
