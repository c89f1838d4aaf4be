// Package monitor 捕获页面单元执行期间的显式错误上报与未捕获失败，
// 并把记录落入 errorstore。对应原方案中的全局拦截点，这里改为
// 显式注入的组件引用，展示回调由构造方注入。
package monitor

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saradindusengupta/streamlit-healthcheck/internal/errorstore"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/metrics"
)

// DisplayFunc 错误展示回调。Report 在落库之后调用它，把消息转发给
// 外部 UI 层；为 nil 时跳过。
type DisplayFunc func(message string)

// PageMonitor 页面错误监视器。
// 进程内共享，可能被任意执行页面单元的 goroutine 并发调用，
// 内存工作集与落库写入都由同一把互斥锁串行化。
type PageMonitor struct {
	mu      sync.Mutex
	errors  map[string][]errorstore.ErrorRecord
	current string

	store   *errorstore.Store
	display DisplayFunc
	metrics *metrics.AppMetrics
	log     *zap.Logger
}

// New 创建监视器。store 不能为 nil；display 与 m 可以为 nil，
// m 为 nil 时不上报捕获计数。
func New(store *errorstore.Store, display DisplayFunc, m *metrics.AppMetrics, log *zap.Logger) *PageMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &PageMonitor{
		errors:  make(map[string][]errorstore.ErrorRecord),
		store:   store,
		display: display,
		metrics: m,
		log:     log,
	}
}

// SetPageContext 设置当前页面上下文，用于标记后续 Report 的归属页面。
func (m *PageMonitor) SetPageContext(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = name
}

// Report 记录一条显式上报的页面错误（type=streamlit_error，status=critical），
// 归属当前页面上下文（未设置时归为 unknown_page），落库后转发给展示回调。
// 落库失败只记日志——错误展示不能因存储故障而被阻断。
func (m *PageMonitor) Report(message string) {
	m.mu.Lock()
	page := m.current
	if page == "" {
		page = errorstore.PageUnknown
	}
	rec := errorstore.ErrorRecord{
		Page:      page,
		Error:     message,
		Traceback: string(debug.Stack()),
		Timestamp: errorstore.Timestamp(time.Now()),
		Status:    errorstore.StatusCritical,
		Type:      errorstore.TypeStreamlitError,
	}
	m.errors[page] = append(m.errors[page], rec)
	if err := m.store.Insert([]errorstore.ErrorRecord{rec}); err != nil {
		m.log.Warn("persist reported error failed", zap.String("page", page), zap.Error(err))
	}
	if m.metrics != nil {
		m.metrics.ErrorsCaptured.Inc()
	}
	display := m.display
	m.mu.Unlock()

	if display != nil {
		display(message)
	}
}

// Track 在页面上下文中执行 fn。
// 进入时设置页面上下文，并丢弃该页面此前记录的 exception 类条目
// （保留 streamlit_error 类条目）：一次新的运行应清掉自己上次的
// 瞬态异常，而不是显式上报历史。
// fn 返回错误或发生 panic 时记录为 exception 类条目并原样重新抛出，
// 包装层绝不吞掉失败。
func (m *PageMonitor) Track(page string, fn func() error) error {
	m.mu.Lock()
	m.current = page
	kept := m.errors[page][:0]
	for _, e := range m.errors[page] {
		if e.Type == errorstore.TypeStreamlitError {
			kept = append(kept, e)
		}
	}
	if len(kept) > 0 {
		m.errors[page] = kept
	} else {
		delete(m.errors, page)
	}
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.capture(page, fmt.Sprint(r))
			panic(r)
		}
	}()

	if err := fn(); err != nil {
		m.capture(page, err.Error())
		return err
	}
	return nil
}

// capture 记录一条 exception 类条目并落库。
func (m *PageMonitor) capture(page, message string) {
	rec := errorstore.ErrorRecord{
		Page:      page,
		Error:     message,
		Traceback: string(debug.Stack()),
		Timestamp: errorstore.Timestamp(time.Now()),
		Status:    errorstore.StatusCritical,
		Type:      errorstore.TypeException,
	}

	m.mu.Lock()
	m.errors[page] = append(m.errors[page], rec)
	if err := m.store.Insert([]errorstore.ErrorRecord{rec}); err != nil {
		m.log.Warn("persist captured exception failed", zap.String("page", page), zap.Error(err))
	}
	if m.metrics != nil {
		m.metrics.ErrorsCaptured.Inc()
	}
	m.mu.Unlock()
}

// PageErrors 从存储加载全部记录并按页面分组，每页按错误消息文本去重，
// 最后一次出现胜出，只返回至少有一条错误的页面。
// 已知局限：不同调用点恰好产生相同消息文本时会被折叠为一条，
// 这是刻意的降噪行为，避免噪声循环刷爆面板。
func (m *PageMonitor) PageErrors() map[string][]errorstore.ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.store.Load(errorstore.Filter{})
	if err != nil {
		m.log.Warn("load page errors failed", zap.Error(err))
		return map[string][]errorstore.ErrorRecord{}
	}

	// Load 返回时间戳倒序：首次遇到的消息即该消息的最后一次出现。
	result := make(map[string][]errorstore.ErrorRecord)
	seen := make(map[string]map[string]bool)
	for _, r := range rows {
		if seen[r.Page] == nil {
			seen[r.Page] = make(map[string]bool)
		}
		if seen[r.Page][r.Error] {
			continue
		}
		seen[r.Page][r.Error] = true
		result[r.Page] = append(result[r.Page], r)
	}
	return result
}

// Clear 清除指定页面的内存工作集与持久化记录。
func (m *PageMonitor) Clear(page string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errors, page)
	m.store.Clear(page)
}

// ClearAll 清除全部页面的内存工作集与持久化记录。
func (m *PageMonitor) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = make(map[string][]errorstore.ErrorRecord)
	m.store.ClearAll()
}
