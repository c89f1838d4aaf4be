// Package app 负责组装服务：配置 → 错误库 → 页面监视器 → 检查执行器 →
// 调度器 → HTTP 查询服务，并统一管理生命周期。
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/saradindusengupta/streamlit-healthcheck/internal/api"
	cfgpkg "github.com/saradindusengupta/streamlit-healthcheck/internal/config"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/errorstore"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/health"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/httpserver"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/metrics"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/monitor"
)

// App 组装完成的服务实例
type App struct {
	Config     *cfgpkg.Config
	Logger     *zap.Logger
	Store      *errorstore.Store
	Monitor    *monitor.PageMonitor
	Runner     *health.Runner
	Scheduler  *health.Scheduler
	HTTP       *httpserver.Server
	InstanceID string
}

// Options 组装选项
type Options struct {
	// Display 页面错误展示回调，注入给监视器；可为 nil。
	Display monitor.DisplayFunc
	// Sampler 覆盖系统采样器，测试用；为 nil 时使用 gopsutil。
	Sampler health.Sampler
}

// New 按配置组装服务。坏配置在上游已降级为默认值，这里只做装配。
func New(cfg *cfgpkg.Config, logger *zap.Logger, opts Options) (*App, error) {
	store, err := errorstore.New(cfg.ErrorStore.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("create error store: %w", err)
	}
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("init error store: %w", err)
	}

	var appMetrics *metrics.AppMetrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enable {
		reg := metrics.NewRegistry()
		appMetrics = metrics.NewAppMetrics(reg)
		metricsHandler = metrics.Handler(reg)
	}

	mon := monitor.New(store, opts.Display, appMetrics, logger)

	instanceID := GenerateInstanceID()
	runner := health.NewRunner(cfg, mon, opts.Sampler, appMetrics, instanceID, logger)
	sched := health.NewScheduler(runner, cfg.Interval(), logger)

	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, runner.Ready)
	api.RegisterRoutes(httpSrv.Engine(), runner, mon, cfg.RateLimit, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Monitor:    mon,
		Runner:     runner,
		Scheduler:  sched,
		HTTP:       httpSrv,
		InstanceID: instanceID,
	}, nil
}

// Start 启动后台调度与 HTTP 服务。HTTP 启动错误通过返回的通道上报。
func (a *App) Start() <-chan error {
	a.Scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.HTTP.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.Logger.Info("healthcheck service started",
		zap.String("instance_id", a.InstanceID),
		zap.String("addr", a.Config.HTTP.Addr),
		zap.Duration("check_interval", a.Config.Interval()))
	return errCh
}

// Shutdown 先停调度器（等待在途轮次），再优雅关闭 HTTP。
func (a *App) Shutdown(ctx context.Context) {
	a.Scheduler.Stop()
	if err := a.HTTP.Shutdown(ctx); err != nil {
		a.Logger.Warn("http shutdown error", zap.Error(err))
	}
	a.Logger.Info("healthcheck service stopped")
}
