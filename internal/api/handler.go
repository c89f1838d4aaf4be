package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saradindusengupta/streamlit-healthcheck/internal/health"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/monitor"
)

// serviceVersion 对外元数据中报告的版本号。
const serviceVersion = "1.0.0"

// HealthHandler 健康查询处理器
type HealthHandler struct {
	runner  *health.Runner
	monitor *monitor.PageMonitor
	logger  *zap.Logger
}

// NewHealthHandler 创建健康查询处理器
func NewHealthHandler(runner *health.Runner, mon *monitor.PageMonitor, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{runner: runner, monitor: mon, logger: logger}
}

// Root 服务元数据与端点索引
// @Summary 服务元数据
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router / [get]
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     "streamlit-healthcheck",
		"version":     serviceVersion,
		"description": "API for monitoring Streamlit application health",
		"endpoints": gin.H{
			"health":       "/health",
			"system":       "/health/system",
			"dependencies": "/health/dependencies",
			"pages":        "/health/pages",
		},
	})
}

// GetHealth 完整健康快照
// @Summary 查询完整健康快照
// @Produce json
// @Success 200 {object} health.HealthSnapshot "成功"
// @Failure 503 {object} map[string]interface{} "首轮检查尚未完成"
// @Router /health [get]
func (h *HealthHandler) GetHealth(c *gin.Context) {
	snap, err := h.runner.Snapshot()
	if err != nil {
		h.writeSnapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetSystem 系统资源健康度
// @Summary 查询系统资源健康度
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router /health/system [get]
func (h *HealthHandler) GetSystem(c *gin.Context) {
	snap, err := h.runner.Snapshot()
	if err != nil {
		h.writeSnapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"system": snap.System})
}

// GetDependencies 依赖健康度
// @Summary 查询依赖健康度
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router /health/dependencies [get]
func (h *HealthHandler) GetDependencies(c *gin.Context) {
	snap, err := h.runner.Snapshot()
	if err != nil {
		h.writeSnapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dependencies": snap.Dependencies})
}

// GetPages 页面健康度。先触发一轮新检查再返回，
// 保证页面错误是此刻的而不是上个周期的。
// @Summary 查询页面健康度
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router /health/pages [get]
func (h *HealthHandler) GetPages(c *gin.Context) {
	h.runner.RunAllChecks(c.Request.Context())
	snap, err := h.runner.Snapshot()
	if err != nil {
		h.writeSnapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"streamlit_pages": snap.Pages})
}

// Refresh 手动触发一轮完整检查
// @Summary 手动触发检查
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router /health/refresh [post]
func (h *HealthHandler) Refresh(c *gin.Context) {
	h.runner.RunAllChecks(c.Request.Context())
	snap, err := h.runner.Snapshot()
	if err != nil {
		h.writeSnapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ClearPageErrors 清除指定页面的错误记录
// @Summary 清除指定页面错误
// @Param page path string true "页面名"
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router /health/pages/{page} [delete]
func (h *HealthHandler) ClearPageErrors(c *gin.Context) {
	page := c.Param("page")
	h.monitor.Clear(page)
	h.logger.Info("page errors cleared", zap.String("page", page))
	c.JSON(http.StatusOK, gin.H{"cleared": page})
}

// ClearAllPageErrors 清除全部页面的错误记录
// @Summary 清除全部页面错误
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router /health/pages [delete]
func (h *HealthHandler) ClearAllPageErrors(c *gin.Context) {
	h.monitor.ClearAll()
	h.logger.Info("all page errors cleared")
	c.JSON(http.StatusOK, gin.H{"cleared": "all"})
}

// writeSnapshotError 未就绪与普通错误在查询边界必须可区分：
// 前者 503，后者 500。
func (h *HealthHandler) writeSnapshotError(c *gin.Context, err error) {
	if errors.Is(err, health.ErrNotReady) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "health check service not ready"})
		return
	}
	h.logger.Error("get health snapshot failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
