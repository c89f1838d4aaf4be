package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/saradindusengupta/streamlit-healthcheck/internal/config"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/errorstore"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/metrics"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/monitor"
)

// ErrNotReady 首轮检查完成前查询快照返回该错误，
// 查询边界据此区分“未就绪”与“出错”。
var ErrNotReady = errors.New("health check service not ready")

// CustomCheckFunc 自定义检查函数：无参，返回带 Status 的结果。
// 函数引用只存在于注册表，绝不进入对外快照。
type CustomCheckFunc func() CheckResult

// Runner 执行一轮完整检查并独占持有共享健康快照。
// 注册表（可调用）与结果（纯数据）分开存放，结果随快照自由序列化。
type Runner struct {
	cfg        *cfgpkg.Config
	sampler    Sampler
	client     *http.Client
	monitor    *monitor.PageMonitor
	metrics    *metrics.AppMetrics
	log        *zap.Logger
	instanceID string

	checksMu     sync.RWMutex
	customChecks map[string]CustomCheckFunc

	mu       sync.RWMutex
	snapshot HealthSnapshot
	ready    bool
}

// NewRunner 创建检查执行器。sampler 为 nil 时使用 gopsutil 采样器，
// m 为 nil 时不上报指标。
func NewRunner(cfg *cfgpkg.Config, mon *monitor.PageMonitor, sampler Sampler, m *metrics.AppMetrics, instanceID string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if sampler == nil {
		sampler = GopsutilSampler{}
	}
	return &Runner{
		cfg:          cfg,
		sampler:      sampler,
		client:       &http.Client{},
		monitor:      mon,
		metrics:      m,
		log:          log,
		instanceID:   instanceID,
		customChecks: make(map[string]CustomCheckFunc),
	}
}

// RegisterCustomCheck 注册自定义检查。同名覆盖。
func (r *Runner) RegisterCustomCheck(name string, fn CustomCheckFunc) {
	r.checksMu.Lock()
	defer r.checksMu.Unlock()
	r.customChecks[name] = fn
}

// RunAllChecks 执行一轮检查：服务器 → 系统 → 依赖 → 自定义 → 页面 → 聚合。
// 轮内顺序固定，聚合看到的一定是同一轮的结果；整份快照最后原子换入，
// 读方看不到两轮字段混杂的中间态。单项失败不会中断本轮其余检查。
func (r *Runner) RunAllChecks(ctx context.Context) {
	start := time.Now()

	snap := HealthSnapshot{
		LastUpdated:  errorstore.Timestamp(time.Now()),
		InstanceID:   r.instanceID,
		System:       make(map[string]CheckResult),
		Dependencies: make(map[string]CheckResult),
		CustomChecks: make(map[string]CheckResult),
	}

	snap.Server = r.checkServer(ctx)

	if r.cfg.SystemChecks.CPU {
		snap.System["cpu"] = r.checkCPU(ctx)
	}
	if r.cfg.SystemChecks.Memory {
		snap.System["memory"] = r.checkMemory(ctx)
	}
	if r.cfg.SystemChecks.Disk {
		snap.System["disk"] = r.checkDisk(ctx)
	}

	for _, ep := range r.cfg.Dependencies.APIEndpoints {
		if ep.URL == "" {
			continue
		}
		snap.Dependencies[ep.Name] = r.checkEndpoint(ctx, ep)
	}
	for _, db := range r.cfg.Dependencies.Databases {
		snap.Dependencies[db.Name] = r.checkDatabase(db)
	}

	snap.CustomChecks = r.runCustomChecks()
	snap.Pages = r.checkPages()
	snap.OverallStatus = aggregateSnapshot(&snap)

	r.mu.Lock()
	r.snapshot = snap
	r.ready = true
	r.mu.Unlock()

	r.reportMetrics(&snap, time.Since(start))
	r.log.Debug("check cycle complete",
		zap.String("overall_status", string(snap.OverallStatus)),
		zap.Duration("elapsed", time.Since(start)))
}

// Snapshot 返回当前快照的深拷贝。首轮检查完成前返回 ErrNotReady。
func (r *Runner) Snapshot() (HealthSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return HealthSnapshot{}, ErrNotReady
	}
	return r.snapshot.Clone(), nil
}

// Ready 是否已完成过至少一轮检查。
func (r *Runner) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

func (r *Runner) checkCPU(ctx context.Context) CheckResult {
	usage, err := r.sampler.CPUPercent(ctx)
	if err != nil {
		return CheckResult{Status: StatusCritical, Error: fmt.Sprintf("cpu sample failed: %v", err)}
	}
	return CheckResult{
		Status:       Classify(usage, r.cfg.Thresholds.CPUWarning, r.cfg.Thresholds.CPUCritical),
		UsagePercent: usage,
	}
}

func (r *Runner) checkMemory(ctx context.Context) CheckResult {
	stats, err := r.sampler.Memory(ctx)
	if err != nil {
		return CheckResult{Status: StatusCritical, Error: fmt.Sprintf("memory sample failed: %v", err)}
	}
	return CheckResult{
		Status:       Classify(stats.UsedPercent, r.cfg.Thresholds.MemoryWarning, r.cfg.Thresholds.MemoryCritical),
		UsagePercent: stats.UsedPercent,
		TotalGB:      stats.TotalGB,
		AvailableGB:  stats.AvailableGB,
	}
}

func (r *Runner) checkDisk(ctx context.Context) CheckResult {
	stats, err := r.sampler.Disk(ctx, "/")
	if err != nil {
		return CheckResult{Status: StatusCritical, Error: fmt.Sprintf("disk sample failed: %v", err)}
	}
	return CheckResult{
		Status:       Classify(stats.UsedPercent, r.cfg.Thresholds.DiskWarning, r.cfg.Thresholds.DiskCritical),
		UsagePercent: stats.UsedPercent,
		TotalGB:      stats.TotalGB,
		FreeGB:       stats.FreeGB,
	}
}

// runCustomChecks 逐个执行注册的自定义检查。
// 单个检查 panic 被兜住并替换为带异常文本的 critical 结果，
// 不影响其余检查。
func (r *Runner) runCustomChecks() map[string]CheckResult {
	r.checksMu.RLock()
	checks := make(map[string]CustomCheckFunc, len(r.customChecks))
	for name, fn := range r.customChecks {
		checks[name] = fn
	}
	r.checksMu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	for name, fn := range checks {
		results[name] = runCustomCheck(fn)
	}
	return results
}

func runCustomCheck(fn CustomCheckFunc) (result CheckResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = CheckResult{Status: StatusCritical, Error: fmt.Sprint(rec)}
		}
	}()
	result = fn()
	if result.Status == "" {
		result.Status = StatusUnknown
	}
	return result
}

// checkPages 从页面监视器推导页面健康度：无错误 → healthy/0，
// 有错误 → critical，错误数为所有页面条目总和。
func (r *Runner) checkPages() PageHealth {
	if r.monitor == nil {
		return PageHealth{
			Status:  StatusHealthy,
			Errors:  map[string][]errorstore.ErrorRecord{},
			Details: "page monitoring disabled",
		}
	}

	pageErrors := r.monitor.PageErrors()
	if len(pageErrors) == 0 {
		return PageHealth{
			Status:     StatusHealthy,
			ErrorCount: 0,
			Errors:     pageErrors,
			Details:    "all pages functioning normally",
		}
	}

	count := 0
	for _, recs := range pageErrors {
		count += len(recs)
	}
	return PageHealth{
		Status:     StatusCritical,
		ErrorCount: count,
		Errors:     pageErrors,
		Details:    "errors detected in streamlit pages",
	}
}

// aggregateSnapshot 收集一轮快照内所有组件状态并聚合。
func aggregateSnapshot(snap *HealthSnapshot) Status {
	statuses := make([]Status, 0, 2+len(snap.System)+len(snap.Dependencies)+len(snap.CustomChecks))
	statuses = append(statuses, snap.Server.Status)
	for _, res := range snap.System {
		statuses = append(statuses, res.Status)
	}
	for _, res := range snap.Dependencies {
		statuses = append(statuses, res.Status)
	}
	for _, res := range snap.CustomChecks {
		statuses = append(statuses, res.Status)
	}
	statuses = append(statuses, snap.Pages.Status)
	return Aggregate(statuses)
}

func (r *Runner) reportMetrics(snap *HealthSnapshot, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.CheckCyclesTotal.Inc()
	r.metrics.CycleDurationSeconds.Observe(elapsed.Seconds())
	r.metrics.PageErrorCount.Set(float64(snap.Pages.ErrorCount))
	for _, s := range []Status{StatusHealthy, StatusWarning, StatusCritical, StatusUnknown} {
		v := 0.0
		if snap.OverallStatus == s {
			v = 1.0
		}
		r.metrics.OverallStatus.WithLabelValues(string(s)).Set(v)
	}
}
