package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"frontsync/internal/changes"
	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/pkg/metrics"
	"frontsync/pkg/otel"
)

// Gate 每个阶段开始前询问是否允许访问远端（由 health.Monitor 实现）
type Gate interface {
	Allow(ctx context.Context) bool
}

type OrchestratorConfig struct {
	// FoundationConcurrency 并发同步 teammates / tags / inboxes
	FoundationConcurrency bool
}

// IncrementalResult 变更检测结果加上对检测到的会话执行同步的统计
type IncrementalResult struct {
	changes.Result
	Stats Stats `json:"stats"`
}

// Orchestrator 按依赖顺序执行各资源同步：
// 基础资源 -> 联系人 -> 会话 -> 消息。某个阶段失败或被跳过不影响后续阶段。
type Orchestrator struct {
	store    store.Store
	registry *Registry
	detector *changes.Detector
	gate     Gate
	cfg      OrchestratorConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(st store.Store, registry *Registry, detector *changes.Detector, gate Gate, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: registry,
		detector: detector,
		gate:     gate,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

var foundation = []ResourceType{ResourceTeammates, ResourceTags, ResourceInboxes}

// SyncAll 完整流水线：基础资源、联系人，然后是会话和消息。since 为空时全量同步会话，
// 消息覆盖本次处理过的全部会话（包括跳过的），上次失败的消息阶段因此能补齐；否则只同步检测到变化的会话。
func (o *Orchestrator) SyncAll(ctx context.Context, since *time.Time) Stats {
	mode := model.SyncModeFull
	if since != nil {
		mode = model.SyncModeIncremental
	}
	ctx, span := otel.StartSpan(ctx, "sync.all", trace.WithAttributes(attribute.String("sync.mode", string(mode))))
	defer span.End()

	run := o.startRun(ctx, mode, since)
	var stats Stats
	stats.ensureErrors()

	o.runFoundation(ctx, mode, &stats)
	o.runPhase(ctx, ResourceContacts, Scope{Mode: string(mode)}, &stats)

	if since == nil {
		convs := o.runPhase(ctx, ResourceConversations, Scope{Mode: string(mode)}, &stats)
		o.runPhase(ctx, ResourceMessages, Scope{Mode: string(mode), ConversationIDs: convs.Processed}, &stats)
	} else {
		o.syncDetected(ctx, mode, *since, nil, 0, &stats)
	}

	o.finishRun(ctx, run, &stats)
	return stats
}

// SyncConversationIDs 按外部 ID 重新同步指定会话，withMessages 时接着同步这些会话的消息
func (o *Orchestrator) SyncConversationIDs(ctx context.Context, ids []string, withMessages bool) Stats {
	ctx, span := otel.StartSpan(ctx, "sync.conversations", trace.WithAttributes(attribute.Int("sync.conversation_count", len(ids))))
	defer span.End()

	run := o.startRun(ctx, model.SyncModeTargeted, nil)
	var stats Stats
	stats.ensureErrors()
	o.syncConversations(ctx, model.SyncModeTargeted, ids, withMessages, &stats)
	o.finishRun(ctx, run, &stats)
	return stats
}

// SyncMessagesForConversations 只同步指定会话的消息，会话必须已在本地存在
func (o *Orchestrator) SyncMessagesForConversations(ctx context.Context, ids []string) Stats {
	ctx, span := otel.StartSpan(ctx, "sync.messages", trace.WithAttributes(attribute.Int("sync.conversation_count", len(ids))))
	defer span.End()

	run := o.startRun(ctx, model.SyncModeTargeted, nil)
	var stats Stats
	stats.ensureErrors()
	o.runPhase(ctx, ResourceMessages, Scope{Mode: string(model.SyncModeTargeted), ConversationIDs: ids}, &stats)
	o.finishRun(ctx, run, &stats)
	return stats
}

// IncrementalSync 检测时间窗口内有活动或新建的会话，并同步这些会话及其消息
func (o *Orchestrator) IncrementalSync(ctx context.Context, since time.Time, until *time.Time, maxEvents int) IncrementalResult {
	ctx, span := otel.StartSpan(ctx, "sync.incremental")
	defer span.End()

	run := o.startRun(ctx, model.SyncModeIncremental, &since)
	var stats Stats
	stats.ensureErrors()
	detected := o.syncDetected(ctx, model.SyncModeIncremental, since, until, maxEvents, &stats)
	o.finishRun(ctx, run, &stats)
	return IncrementalResult{Result: detected, Stats: stats}
}

// syncDetected 检测后同步会话和消息；检测被熔断跳过时两个阶段都记为未运行
func (o *Orchestrator) syncDetected(ctx context.Context, mode model.SyncMode, since time.Time, until *time.Time, maxEvents int, stats *Stats) changes.Result {
	if !o.allowed(ctx, "change detection", stats) {
		stats.Phases = append(stats.Phases,
			PhaseSummary{Resource: ResourceConversations, NotRun: true},
			PhaseSummary{Resource: ResourceMessages, NotRun: true},
		)
		return changes.Result{Since: since, ConversationIDs: []string{}}
	}
	detected := o.detector.Detect(ctx, changes.Window{Since: since, Until: until, MaxEvents: maxEvents})
	for _, e := range detected.Errors {
		stats.AddErrorf("change detection: %s", e)
	}
	if len(detected.ConversationIDs) == 0 {
		o.logger.Info("No changed conversations detected", zap.Time("since", since))
		return detected
	}
	o.syncConversations(ctx, mode, detected.ConversationIDs, true, stats)
	return detected
}

func (o *Orchestrator) syncConversations(ctx context.Context, mode model.SyncMode, ids []string, withMessages bool, stats *Stats) {
	convs := o.runPhase(ctx, ResourceConversations, Scope{Mode: string(mode), ConversationIDs: ids}, stats)
	if withMessages {
		o.runPhase(ctx, ResourceMessages, Scope{Mode: string(mode), ConversationIDs: convs.Processed}, stats)
	}
}

// runFoundation 基础资源，按配置顺序或并发执行；全部结束后才返回
func (o *Orchestrator) runFoundation(ctx context.Context, mode model.SyncMode, stats *Stats) {
	if !o.cfg.FoundationConcurrency {
		for _, rt := range foundation {
			o.runPhase(ctx, rt, Scope{Mode: string(mode)}, stats)
		}
		return
	}

	reports := make([]Stats, len(foundation))
	g, gctx := errgroup.WithContext(ctx)
	for i, rt := range foundation {
		i, rt := i, rt
		g.Go(func() error {
			var local Stats
			o.runPhase(gctx, rt, Scope{Mode: string(mode)}, &local)
			reports[i] = local
			return nil
		})
	}
	_ = g.Wait()
	for _, r := range reports {
		stats.Merge(r)
	}
}

// runPhase 询问熔断器后执行一个资源同步并合并统计；跳过时返回空 Report
func (o *Orchestrator) runPhase(ctx context.Context, rt ResourceType, scope Scope, stats *Stats) Report {
	if !o.allowed(ctx, string(rt), stats) {
		stats.Phases = append(stats.Phases, PhaseSummary{Resource: rt, NotRun: true})
		return Report{}
	}
	res, err := o.registry.Get(rt)
	if err != nil {
		stats.AddError(err.Error())
		stats.Phases = append(stats.Phases, PhaseSummary{Resource: rt, NotRun: true})
		return Report{}
	}

	ctx, span := otel.StartSpan(ctx, "sync.phase."+string(rt))
	defer span.End()
	report := res.Sync(ctx, scope)
	stats.Merge(report.Stats)

	o.logger.Info("Sync phase finished",
		zap.String("resource", string(rt)),
		zap.String("mode", scope.Mode),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (o *Orchestrator) allowed(ctx context.Context, phase string, stats *Stats) bool {
	if o.gate == nil || o.gate.Allow(ctx) {
		return true
	}
	stats.AddErrorf("%s: skipped, circuit breaker open", phase)
	o.logger.Warn("Circuit breaker open, skipping sync phase", zap.String("phase", phase))
	return false
}

func (o *Orchestrator) startRun(ctx context.Context, mode model.SyncMode, since *time.Time) *model.SyncRun {
	run := &model.SyncRun{
		ID:        uuid.NewString(),
		Mode:      mode,
		Status:    model.SyncRunRunning,
		Since:     since,
		StartedAt: o.now().UTC(),
	}
	if err := o.store.SyncRuns().Create(ctx, run); err != nil {
		o.logger.Error("Failed to record sync run start", zap.String("run_id", run.ID), zap.Error(err))
	}
	o.logger.Info("Sync run started", zap.String("run_id", run.ID), zap.String("mode", string(mode)))
	return run
}

// finishRun 有阶段未运行或未完整运行时记为 error；仅有单条失败仍为 completed
func (o *Orchestrator) finishRun(ctx context.Context, run *model.SyncRun, stats *Stats) {
	finished := o.now().UTC()
	run.FinishedAt = &finished
	run.Status = model.SyncRunCompleted
	if stats.Incomplete() {
		run.Status = model.SyncRunError
	}
	run.Created = stats.Created
	run.Updated = stats.Updated
	run.Skipped = stats.Skipped
	run.Failed = stats.Failed
	run.Errors = append([]string(nil), stats.Errors...)

	if err := o.store.SyncRuns().Finish(ctx, run); err != nil {
		o.logger.Error("Failed to record sync run finish", zap.String("run_id", run.ID), zap.Error(err))
	}
	metrics.IncrementSyncRun(string(run.Mode), string(run.Status))
	o.logger.Info("Sync run finished",
		zap.String("run_id", run.ID),
		zap.String("mode", string(run.Mode)),
		zap.String("status", string(run.Status)),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", finished.Sub(run.StartedAt)),
	)
}
