// Package scheduler 定时触发增量同步和全量同步。
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"frontsync/internal/store"
	"frontsync/internal/syncer"
	"frontsync/pkg/trace"
)

// Runner 由 syncer.Orchestrator 实现。since 非空时先同步基础资源和联系人，再同步检测到变化的会话
type Runner interface {
	SyncAll(ctx context.Context, since *time.Time) syncer.Stats
}

type Config struct {
	IncrementalInterval time.Duration
	FullInterval        time.Duration
	// Overlap 增量窗口向前多取的时长，覆盖上次运行期间发生的变更
	Overlap time.Duration
}

// Scheduler 同一时间只运行一个同步；上一次还没结束时跳过本次触发
type Scheduler struct {
	runner Runner
	runs   store.SyncRunRepository
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	busy   sync.Mutex
}

func New(runner Runner, runs store.SyncRunRepository, cfg Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{runner: runner, runs: runs, cfg: cfg, logger: logger, now: time.Now}
}

// Start 阻塞直到 ctx 取消。启动时先执行一次增量（没有已完成的运行时执行全量）
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting sync scheduler",
		zap.Duration("incremental_interval", s.cfg.IncrementalInterval),
		zap.Duration("full_interval", s.cfg.FullInterval),
		zap.Duration("overlap", s.cfg.Overlap),
	)

	incremental := time.NewTicker(s.cfg.IncrementalInterval)
	defer incremental.Stop()
	full := time.NewTicker(s.cfg.FullInterval)
	defer full.Stop()

	s.RunIncremental(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sync scheduler stopped")
			return
		case <-incremental.C:
			s.RunIncremental(ctx)
		case <-full.C:
			s.RunFull(ctx)
		}
	}
}

// RunIncremental 返回 false 表示因为已有同步在运行而跳过
func (s *Scheduler) RunIncremental(ctx context.Context) bool {
	if !s.busy.TryLock() {
		s.logger.Info("Previous sync still running, skipping incremental tick")
		return false
	}
	defer s.busy.Unlock()

	ctx = trace.WithContext(ctx, trace.GenerateTraceID())
	since, ok, err := s.IncrementalWindow(ctx)
	if err != nil {
		s.logger.Error("Failed to determine incremental window", zap.Error(err))
		return true
	}
	if !ok {
		s.logger.Info("No completed sync run yet, running full sync instead")
		s.runFull(ctx)
		return true
	}

	stats := s.runner.SyncAll(ctx, &since)
	s.logger.Info("Scheduled incremental sync finished",
		zap.Time("since", since),
		zap.Int("changes", stats.Changes()),
		zap.Int("failed", stats.Failed),
		zap.Bool("incomplete", stats.Incomplete()),
	)
	return true
}

// RunFull 返回 false 表示因为已有同步在运行而跳过
func (s *Scheduler) RunFull(ctx context.Context) bool {
	if !s.busy.TryLock() {
		s.logger.Info("Previous sync still running, skipping full tick")
		return false
	}
	defer s.busy.Unlock()
	s.runFull(trace.WithContext(ctx, trace.GenerateTraceID()))
	return true
}

func (s *Scheduler) runFull(ctx context.Context) {
	stats := s.runner.SyncAll(ctx, nil)
	s.logger.Info("Scheduled full sync finished",
		zap.Int("changes", stats.Changes()),
		zap.Int("failed", stats.Failed),
		zap.Bool("incomplete", stats.Incomplete()),
	)
}

// IncrementalWindow 上次完成运行的开始时间减去 overlap；没有完成的运行时 ok 为 false
func (s *Scheduler) IncrementalWindow(ctx context.Context) (since time.Time, ok bool, err error) {
	last, err := s.runs.LastCompleted(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return last.StartedAt.Add(-s.cfg.Overlap), true, nil
}
