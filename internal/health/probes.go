package health

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/saradindusengupta/streamlit-healthcheck/internal/config"
)

// serverProbeTimeout 被监控应用存活探测的固定超时。
const serverProbeTimeout = 3 * time.Second

// defaultEndpointTimeout 依赖探测未配置超时时的默认值（秒）。
const defaultEndpointTimeout = 5

// checkEndpoint 探测单个 API 依赖。
// status_code < 400 → healthy，否则 critical；任何网络错误记为 critical
// 并带上错误文本，绝不向外抛错。
func (r *Runner) checkEndpoint(ctx context.Context, ep cfgpkg.APIEndpoint) CheckResult {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultEndpointTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return CheckResult{
			Status: StatusCritical,
			Type:   "api",
			URL:    ep.URL,
			Error:  err.Error(),
		}
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return CheckResult{
			Status: StatusCritical,
			Type:   "api",
			URL:    ep.URL,
			Error:  err.Error(),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	status := StatusHealthy
	if resp.StatusCode >= 400 {
		status = StatusCritical
	}
	return CheckResult{
		Status:         status,
		Type:           "api",
		URL:            ep.URL,
		ResponseTimeMS: roundMS(time.Since(start)),
		StatusCode:     resp.StatusCode,
	}
}

// checkDatabase 数据库依赖检查占位：始终 unknown。
// 这是记录在案的缺口，不是失败。
func (r *Runner) checkDatabase(db cfgpkg.DatabaseDep) CheckResult {
	return CheckResult{
		Status:  StatusUnknown,
		Type:    "database",
		DBType:  db.Type,
		Message: "database check not implemented",
	}
}

// checkServer 探测被监控应用自身的 /healthz 存活路径，3 秒超时。
// 200 → healthy 带延迟；非 200 → critical 带状态码；
// 连接错误 / 超时 / 其他异常共用 critical 状态，但消息保持可区分，
// 方便运维定位。
func (r *Runner) checkServer(ctx context.Context) CheckResult {
	base := normalizeBaseURL(r.cfg.StreamlitURL, r.cfg.StreamlitPort)
	url := base + "/healthz"

	ctx, cancel := context.WithTimeout(ctx, serverProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return CheckResult{
			Status:  StatusCritical,
			URL:     url,
			Error:   fmt.Sprintf("unknown error: %v", err),
			Message: "failed to check streamlit server",
		}
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	latency := roundMS(time.Since(start))
	if err != nil {
		return classifyProbeError(url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		return CheckResult{
			Status:     StatusHealthy,
			URL:        url,
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Message:    fmt.Sprintf("streamlit server is running (%s)", latencyBand(latency)),
		}
	}

	r.log.Warn("unhealthy response from streamlit server", zap.Int("status_code", resp.StatusCode))
	return CheckResult{
		Status:     StatusCritical,
		URL:        url,
		StatusCode: resp.StatusCode,
		Error:      fmt.Sprintf("unhealthy response from server: %d", resp.StatusCode),
		Message:    "streamlit server is not healthy",
	}
}

// classifyProbeError 把探测错误映射为可区分的 critical 结果：
// 超时、连接失败、其他异常三类消息各不相同。
func classifyProbeError(url string, err error) CheckResult {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		return CheckResult{
			Status:  StatusCritical,
			URL:     url,
			Error:   fmt.Sprintf("timeout error: %v", err),
			Message: "streamlit server is not responding",
		}
	case isConnectionError(err):
		return CheckResult{
			Status:  StatusCritical,
			URL:     url,
			Error:   fmt.Sprintf("connection error: %v", err),
			Message: "cannot connect to streamlit server",
		}
	default:
		return CheckResult{
			Status:  StatusCritical,
			URL:     url,
			Error:   fmt.Sprintf("unknown error: %v", err),
			Message: "failed to check streamlit server",
		}
	}
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// normalizeBaseURL 归一化基地址：补全 scheme，去尾部斜杠，拼接端口。
func normalizeBaseURL(url string, port int) string {
	host := strings.TrimRight(url, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// latencyBand 服务器探测延迟分档，进结果消息。
func latencyBand(ms float64) string {
	switch {
	case ms <= 50:
		return "excellent"
	case ms <= 100:
		return "good"
	case ms <= 200:
		return "fair"
	default:
		return "poor"
	}
}

func roundMS(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
