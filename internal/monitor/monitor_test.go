package monitor

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saradindusengupta/streamlit-healthcheck/internal/errorstore"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/metrics"
)

func newTestMonitor(t *testing.T, display DisplayFunc) *PageMonitor {
	t.Helper()
	store, err := errorstore.New(filepath.Join(t.TempDir(), "errors.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Init())
	return New(store, display, nil, zap.NewNop())
}

// TestTrackCapturesError fn 返回错误时：错误原样返回给调用方，
// 且该页出现一条 exception 类记录
func TestTrackCapturesError(t *testing.T) {
	m := newTestMonitor(t, nil)

	boom := errors.New("boom")
	err := m.Track("p", func() error { return boom })

	require.ErrorIs(t, err, boom, "包装层不得吞掉失败")

	pages := m.PageErrors()
	require.Contains(t, pages, "p")
	require.Len(t, pages["p"], 1)
	rec := pages["p"][0]
	assert.Equal(t, errorstore.TypeException, rec.Type)
	assert.Contains(t, rec.Error, "boom")
	assert.Equal(t, errorstore.StatusCritical, rec.Status)
	assert.NotEmpty(t, rec.Traceback)
}

// TestTrackCapturesPanic panic 被记录后原样重新抛出
func TestTrackCapturesPanic(t *testing.T) {
	m := newTestMonitor(t, nil)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = m.Track("p", func() error { panic("kaboom") })
	})

	pages := m.PageErrors()
	require.Contains(t, pages, "p")
	assert.Equal(t, errorstore.TypeException, pages["p"][0].Type)
	assert.Contains(t, pages["p"][0].Error, "kaboom")
}

// TestTrackSuccess 成功执行不产生记录
func TestTrackSuccess(t *testing.T) {
	m := newTestMonitor(t, nil)

	require.NoError(t, m.Track("p", func() error { return nil }))
	assert.Empty(t, m.PageErrors())
}

// TestReportUnderPageContext 显式上报打上当前页面上下文标记，
// 并转发给展示回调
func TestReportUnderPageContext(t *testing.T) {
	var displayed []string
	m := newTestMonitor(t, func(msg string) { displayed = append(displayed, msg) })

	m.SetPageContext("q")
	m.Report("oops")

	pages := m.PageErrors()
	require.Contains(t, pages, "q")
	require.Len(t, pages["q"], 1)
	assert.Equal(t, errorstore.TypeStreamlitError, pages["q"][0].Type)
	assert.Equal(t, "oops", pages["q"][0].Error)

	assert.Equal(t, []string{"oops"}, displayed, "落库后必须转发展示回调")
}

// TestReportWithoutContext 未设置上下文时归入 unknown_page
func TestReportWithoutContext(t *testing.T) {
	m := newTestMonitor(t, nil)

	m.Report("orphan")

	pages := m.PageErrors()
	require.Contains(t, pages, errorstore.PageUnknown)
	assert.Equal(t, "orphan", pages[errorstore.PageUnknown][0].Error)
}

// TestDedupByMessageLastWins 同页同消息只保留最后一次出现
func TestDedupByMessageLastWins(t *testing.T) {
	m := newTestMonitor(t, nil)

	m.SetPageContext("p")
	m.Report("same text")
	m.Report("same text")
	m.Report("different text")

	pages := m.PageErrors()
	require.Contains(t, pages, "p")
	require.Len(t, pages["p"], 2, "相同消息折叠为一条")

	msgs := []string{pages["p"][0].Error, pages["p"][1].Error}
	assert.Contains(t, msgs, "same text")
	assert.Contains(t, msgs, "different text")
}

// TestPageErrorsOnlyNonEmptyPages 只返回有错误的页面
func TestPageErrorsOnlyNonEmptyPages(t *testing.T) {
	m := newTestMonitor(t, nil)

	m.SetPageContext("busy")
	m.Report("problem")

	pages := m.PageErrors()
	assert.Len(t, pages, 1)
	assert.Contains(t, pages, "busy")
}

// TestTrackPrunesPriorExceptions 新一轮运行清掉上一轮的 exception 条目，
// 保留显式上报条目（内存工作集语义）
func TestTrackPrunesPriorExceptions(t *testing.T) {
	m := newTestMonitor(t, nil)

	_ = m.Track("p", func() error { return errors.New("transient") })
	m.SetPageContext("p")
	m.Report("sticky report")

	// 第二轮运行成功
	require.NoError(t, m.Track("p", func() error { return nil }))

	m.mu.Lock()
	working := append([]errorstore.ErrorRecord(nil), m.errors["p"]...)
	m.mu.Unlock()

	require.Len(t, working, 1, "工作集只保留显式上报条目")
	assert.Equal(t, errorstore.TypeStreamlitError, working[0].Type)
}

// TestClearPage 只清指定页面，内存与存储同时生效
func TestClearPage(t *testing.T) {
	m := newTestMonitor(t, nil)

	m.SetPageContext("p")
	m.Report("p error")
	m.SetPageContext("q")
	m.Report("q error")

	m.Clear("p")

	pages := m.PageErrors()
	assert.NotContains(t, pages, "p")
	assert.Contains(t, pages, "q")

	m.mu.Lock()
	_, inMemory := m.errors["p"]
	m.mu.Unlock()
	assert.False(t, inMemory, "内存工作集同步清除")
}

// TestClearAll 全部清除
func TestClearAll(t *testing.T) {
	m := newTestMonitor(t, nil)

	m.SetPageContext("p")
	m.Report("one")
	m.SetPageContext("q")
	m.Report("two")

	m.ClearAll()

	assert.Empty(t, m.PageErrors())
}

// TestConcurrentCapture 并发捕获不丢记录（互斥串行化）
func TestConcurrentCapture(t *testing.T) {
	m := newTestMonitor(t, nil)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			_ = m.Track("p", func() error {
				return errors.New("worker failure " + string(rune('a'+n)))
			})
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	pages := m.PageErrors()
	require.Contains(t, pages, "p")
	assert.Len(t, pages["p"], 8, "8条消息文本互不相同，不应被去重折叠")
}

// TestErrorsCapturedCounter 每条捕获（显式上报、错误、panic）累加计数，
// 成功执行不计
func TestErrorsCapturedCounter(t *testing.T) {
	store, err := errorstore.New(filepath.Join(t.TempDir(), "errors.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Init())
	appMetrics := metrics.NewAppMetrics(metrics.NewRegistry())
	m := New(store, nil, appMetrics, zap.NewNop())

	assert.Equal(t, 0.0, testutil.ToFloat64(appMetrics.ErrorsCaptured))

	m.SetPageContext("p")
	m.Report("reported")
	assert.Equal(t, 1.0, testutil.ToFloat64(appMetrics.ErrorsCaptured))

	_ = m.Track("p", func() error { return errors.New("tracked") })
	assert.Equal(t, 2.0, testutil.ToFloat64(appMetrics.ErrorsCaptured))

	assert.Panics(t, func() {
		_ = m.Track("p", func() error { panic("tracked panic") })
	})
	assert.Equal(t, 3.0, testutil.ToFloat64(appMetrics.ErrorsCaptured))

	require.NoError(t, m.Track("p", func() error { return nil }))
	assert.Equal(t, 3.0, testutil.ToFloat64(appMetrics.ErrorsCaptured))
}
