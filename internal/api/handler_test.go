package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/saradindusengupta/streamlit-healthcheck/internal/config"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/errorstore"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/health"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/monitor"
)

type stubSampler struct{}

func (stubSampler) CPUPercent(ctx context.Context) (float64, error) { return 10, nil }
func (stubSampler) Memory(ctx context.Context) (health.MemoryStats, error) {
	return health.MemoryStats{UsedPercent: 40, TotalGB: 8, AvailableGB: 4}, nil
}
func (stubSampler) Disk(ctx context.Context, path string) (health.DiskStats, error) {
	return health.DiskStats{UsedPercent: 30, TotalGB: 100, FreeGB: 70}, nil
}

type testEnv struct {
	engine  *gin.Engine
	runner  *health.Runner
	monitor *monitor.PageMonitor
}

func newTestEnv(t *testing.T, rateCfg cfgpkg.RateLimitConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// 被监控端：始终 200
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := cfgpkg.Default()
	cfg.StreamlitURL = "http://" + u.Hostname()
	cfg.StreamlitPort = port
	cfg.Dependencies = cfgpkg.Dependencies{}

	store, err := errorstore.New(filepath.Join(t.TempDir(), "errors.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Init())
	mon := monitor.New(store, nil, nil, zap.NewNop())

	runner := health.NewRunner(cfg, mon, stubSampler{}, nil, "test-instance", zap.NewNop())

	engine := gin.New()
	RegisterRoutes(engine, runner, mon, rateCfg, zap.NewNop())
	return &testEnv{engine: engine, runner: runner, monitor: mon}
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// TestRootEndpoint 根路径返回服务元数据与端点索引
func TestRootEndpoint(t *testing.T) {
	env := newTestEnv(t, cfgpkg.RateLimitConfig{})

	w := env.do(http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "streamlit-healthcheck", body["service"])
	assert.Contains(t, body, "endpoints")
}

// TestGetHealthNotReady 首轮检查完成前查询返回 503 而不是 500
func TestGetHealthNotReady(t *testing.T) {
	env := newTestEnv(t, cfgpkg.RateLimitConfig{})

	for _, path := range []string{"/health", "/health/system", "/health/dependencies"} {
		w := env.do(http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Equal(t, "health check service not ready", decodeBody(t, w)["error"], path)
	}
}

// TestGetHealth 就绪后返回完整快照
func TestGetHealth(t *testing.T) {
	env := newTestEnv(t, cfgpkg.RateLimitConfig{})
	env.runner.RunAllChecks(context.Background())

	w := env.do(http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["overall_status"])
	assert.Equal(t, "test-instance", body["instance_id"])
	assert.Contains(t, body, "streamlit_server")
	assert.Contains(t, body, "system")
	assert.Contains(t, body, "streamlit_pages")
	assert.NotEmpty(t, body["last_updated"])
}

// TestGetSystem 系统子视图只含 system 段
func TestGetSystem(t *testing.T) {
	env := newTestEnv(t, cfgpkg.RateLimitConfig{})
	env.runner.RunAllChecks(context.Background())

	w := env.do(http.MethodGet, "/health/system")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	system, ok := body["system"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, system, "cpu")
	assert.Contains(t, system, "memory")
	assert.Contains(t, system, "disk")
	assert.NotContains(t, body, "dependencies")
}

// TestGetDependencies 依赖子视图
func TestGetDependencies(t *testing.T) {
	env := newTestEnv(t, cfgpkg.RateLimitConfig{})
	env.runner.RunAllChecks(context.Background())

	w := env.do(http.MethodGet, "/health/dependencies")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody(t, w), "dependencies")
}

// TestGetPagesTriggersFreshCycle 页面查询先跑一轮新检查，
// 所以未就绪也能直接返回，且错误是此刻的
func TestGetPagesTriggersFreshCycle(t *testing.T) {
	env := newTestEnv(t, cfgpkg.RateLimitConfig{})

	w := env.do(http.MethodGet, "/health/pages")
	require.Equal(t, http.StatusOK, w.Code, "pages 查询自带检查，不该报未就绪")
	assert.True(t, env.runner.Ready())

	env.monitor.SetPageContext("reports")
	env.monitor.Report("query timeout")

	w = env.do(http.MethodGet, "/health/pages")
	require.Equal(t, http.StatusOK, w.Code)
	pages, ok := decodeBody(t, w)["streamlit_pages"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "critical", pages["status"])
	assert.Equal(t, float64(1), pages["error_count"])
}

// TestRefresh 手动触发一轮检查并返回快照
func TestRefresh(t *testing.T) {
	env := newTestEnv(t, cfgpkg.RateLimitConfig{})

	w := env.do(http.MethodPost, "/health/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.runner.Ready())
	assert.Equal(t, "healthy", decodeBody(t, w)["overall_status"])
}

// TestClearPageErrors 按页清除与全量清除
func TestClearPageErrors(t *testing.T) {
	env := newTestEnv(t, cfgpkg.RateLimitConfig{})

	env.monitor.SetPageContext("a")
	env.monitor.Report("err a")
	env.monitor.SetPageContext("b")
	env.monitor.Report("err b")

	w := env.do(http.MethodDelete, "/health/pages/a")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a", decodeBody(t, w)["cleared"])
	pages := env.monitor.PageErrors()
	assert.NotContains(t, pages, "a")
	assert.Contains(t, pages, "b")

	w = env.do(http.MethodDelete, "/health/pages")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.monitor.PageErrors())
}

// TestRateLimit 突发容量用尽后返回 429
func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, cfgpkg.RateLimitConfig{Enable: true, RatePerSec: 1, Burst: 1})
	env.runner.RunAllChecks(context.Background())

	w := env.do(http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/health")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
