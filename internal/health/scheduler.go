package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// stopWait Stop 等待在跑循环退出的上限。
const stopWait = 5 * time.Second

// Scheduler 周期性驱动 Runner 的后台循环。
// 状态机：stopped → running → stopped。Stop 是协作式的：
// 只请求终止，不强杀在途的检查；周期变更由调用方 Stop 后重建并 Start，
// 循环自身不在睡眠中途热加载间隔。
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler 创建调度器。
func NewScheduler(runner *Runner, interval time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{runner: runner, interval: interval, log: log}
}

// Start 启动后台检查循环。已在运行时为 no-op。
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.loop(s.stopCh, s.doneCh)
	s.log.Info("health check scheduler started", zap.Duration("interval", s.interval))
}

// Stop 请求终止并有界等待循环退出。未运行时为 no-op。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(stopWait):
		s.log.Warn("scheduler loop did not exit in time")
	}
	s.log.Info("health check scheduler stopped")
}

// Running 当前是否在运行。
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// loop 运行一轮检查后睡一个周期，循环直至收到停止信号。
// 睡眠可被停止信号打断。
func (s *Scheduler) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		s.runner.RunAllChecks(context.Background())

		select {
		case <-stopCh:
			return
		case <-time.After(s.interval):
		}
	}
}
