package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	mqcontracts "frontsync/contracts/mq"
	"frontsync/internal/syncer"
	"frontsync/pkg/logger"
	"frontsync/pkg/util"
)

const resyncHandlerName = "conversation_resync"

// ConversationSyncer 由 syncer.Orchestrator 实现
type ConversationSyncer interface {
	SyncConversationIDs(ctx context.Context, ids []string, withMessages bool) syncer.Stats
}

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, id string) bool
	Release(ctx context.Context, handler, id string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

// ConversationResyncHandler 处理 front.conversation.resync 请求。
// 同一会话在去重 TTL 内只同步一次；远端不可用导致同步不完整时重新入队，超过重试上限进 DLQ。
type ConversationResyncHandler struct {
	syncer       ConversationSyncer
	deduper      Deduper
	retryCounter RetryCounter
	dlq          DeadLetterPublisher
	maxRetries   int64
	logger       *zap.Logger
}

func NewConversationResyncHandler(
	s ConversationSyncer,
	deduper Deduper,
	retryCounter RetryCounter,
	dlq DeadLetterPublisher,
	maxRetries int64,
	logger *zap.Logger,
) *ConversationResyncHandler {
	return &ConversationResyncHandler{
		syncer:       s,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		maxRetries:   maxRetries,
		logger:       logger,
	}
}

// Handle 返回 nil 表示 ack，返回错误表示 nack 并重新入队
func (h *ConversationResyncHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.ConversationResyncPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal resync payload", zap.Error(err))
		h.deadLetter(ctx, raw, fmt.Sprintf("invalid payload: %v", err))
		return nil
	}

	ids := h.acquire(ctx, uniqueIDs(p.ConversationIDs))
	if len(ids) == 0 {
		log.Debug("No conversations left to resync after dedup",
			zap.Int("requested", len(p.ConversationIDs)))
		return nil
	}

	log.Info("Resyncing conversations",
		zap.Strings("conversation_ids", ids),
		zap.Bool("with_messages", p.WithMessages),
		zap.String("requested_by", p.RequestedBy),
	)

	stats := h.syncer.SyncConversationIDs(ctx, ids, p.WithMessages)
	retryKey := util.FormatRetryKey(resyncHandlerName, strings.Join(ids, ","))

	if !stats.Incomplete() {
		if stats.Failed > 0 {
			log.Warn("Resync finished with item failures",
				zap.Int("failed", stats.Failed),
				zap.Strings("errors", stats.Errors),
			)
		}
		if err := h.retryCounter.Reset(ctx, retryKey); err != nil {
			log.Warn("Failed to reset retry counter", zap.String("retry_key", retryKey), zap.Error(err))
		}
		return nil
	}

	// 不完整：释放去重锁以便重试
	for _, id := range ids {
		h.deduper.Release(ctx, resyncHandlerName, id)
	}
	return h.retryOrDeadLetter(ctx, raw, retryKey, stats)
}

func (h *ConversationResyncHandler) retryOrDeadLetter(ctx context.Context, raw json.RawMessage, retryKey string, stats syncer.Stats) error {
	log := logger.WithTrace(ctx, h.logger)
	cause := errors.New(strings.Join(stats.Errors, "; "))

	count, err := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if err != nil {
		log.Warn("Retry counter unavailable, requeueing", zap.Error(err))
		return fmt.Errorf("resync incomplete: %w", cause)
	}

	if count > h.maxRetries {
		log.Warn("Max retries exceeded, moving resync request to DLQ",
			zap.String("retry_key", retryKey),
			zap.Int64("retry", count),
		)
		h.deadLetter(ctx, raw, cause.Error())
		if err := h.retryCounter.Reset(ctx, retryKey); err != nil {
			log.Warn("Failed to reset retry counter", zap.String("retry_key", retryKey), zap.Error(err))
		}
		return nil
	}

	log.Warn("Resync incomplete, requeueing",
		zap.String("retry_key", retryKey),
		zap.Int64("retry", count),
		zap.Error(cause),
	)
	return fmt.Errorf("resync incomplete: %w", cause)
}

func (h *ConversationResyncHandler) acquire(ctx context.Context, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if h.deduper.AcquireOnce(ctx, resyncHandlerName, id) {
			out = append(out, id)
		}
	}
	return out
}

func (h *ConversationResyncHandler) deadLetter(ctx context.Context, raw json.RawMessage, reason string) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(ctx, mqcontracts.RoutingKeyConversationResync, raw, reason); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
}

// uniqueIDs 去空白、去重并排序，保证重试计数键稳定
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
