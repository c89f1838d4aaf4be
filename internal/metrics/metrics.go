package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 健康检查业务指标
type AppMetrics struct {
	CheckCyclesTotal     prometheus.Counter   // 完成的检查轮次
	CycleDurationSeconds prometheus.Histogram // 单轮检查耗时
	PageErrorCount       prometheus.Gauge     // 最近一轮捕获的页面错误数
	OverallStatus        *prometheus.GaugeVec // 当前总体状态（label: status，当前值为1）
	ErrorsCaptured       prometheus.Counter   // 累计捕获的页面错误条数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		CheckCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthcheck_cycles_total",
			Help: "Total completed health check cycles.",
		}),
		CycleDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthcheck_cycle_duration_seconds",
			Help:    "Duration of a full health check cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		PageErrorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "healthcheck_page_errors",
			Help: "Page errors observed in the latest cycle.",
		}),
		OverallStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "healthcheck_overall_status",
			Help: "Current overall status (1 for the active status label).",
		}, []string{"status"}),
		ErrorsCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthcheck_errors_captured_total",
			Help: "Total page errors captured by the monitor.",
		}),
	}
	reg.MustRegister(m.CheckCyclesTotal, m.CycleDurationSeconds, m.PageErrorCount, m.OverallStatus, m.ErrorsCaptured)
	return m
}
