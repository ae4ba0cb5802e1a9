// Package changes 从事件日志和最新会话列表推断哪些会话需要重新同步。
package changes

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"frontsync/internal/frontapi"
	"frontsync/internal/upsert"
	"frontsync/pkg/metrics"
)

const (
	DefaultMaxEvents            = 1000
	DefaultNewConversationPages = 10
)

// DefaultEventTypes 表示会话有新活动的事件类型
var DefaultEventTypes = []string{"inbound", "outbound", "out_reply", "comment"}

type Config struct {
	EventTypes           []string
	MaxEvents            int
	NewConversationPages int
}

func DefaultConfig() Config {
	return Config{
		EventTypes:           DefaultEventTypes,
		MaxEvents:            DefaultMaxEvents,
		NewConversationPages: DefaultNewConversationPages,
	}
}

// Window 事件时间窗口；Until 为空表示到现在，MaxEvents 为 0 使用默认值
type Window struct {
	Since     time.Time
	Until     *time.Time
	MaxEvents int
}

type Result struct {
	ConversationIDs []string      `json:"conversation_ids"`
	ActiveCount     int           `json:"active_count"`
	NewCount        int           `json:"new_count"`
	EventsScanned   int           `json:"events_scanned"`
	Truncated       bool          `json:"truncated"`
	Since           time.Time     `json:"since"`
	Until           time.Time     `json:"until"`
	Duration        time.Duration `json:"duration"`
	Errors          []string      `json:"errors,omitempty"`
}

// ActiveScan 事件扫描结果；Err 为远端失败，此时 IDs 是失败前已收集的部分
type ActiveScan struct {
	IDs           []string
	EventsScanned int
	Truncated     bool
	Err           error
}

type Detector struct {
	client *frontapi.Client
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewDetector(client *frontapi.Client, cfg Config, logger *zap.Logger) *Detector {
	def := DefaultConfig()
	if len(cfg.EventTypes) == 0 {
		cfg.EventTypes = def.EventTypes
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.NewConversationPages <= 0 {
		cfg.NewConversationPages = def.NewConversationPages
	}
	return &Detector{client: client, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock 替换时钟（测试用）
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// ActiveConversationIDs 扫描时间窗口内的活动事件，按首次出现顺序去重。
// 处理到 maxEvents 条即停止，仍有剩余事件时 Truncated 为 true。
func (d *Detector) ActiveConversationIDs(ctx context.Context, since time.Time, until *time.Time, maxEvents int) ActiveScan {
	if maxEvents <= 0 {
		maxEvents = d.cfg.MaxEvents
	}
	allowed := make(map[string]struct{}, len(d.cfg.EventTypes))
	q := url.Values{}
	for _, t := range d.cfg.EventTypes {
		allowed[t] = struct{}{}
		q.Add("q[types][]", t)
	}
	q.Set("q[after]", strconv.FormatInt(since.Unix(), 10))
	if until != nil {
		q.Set("q[before]", strconv.FormatInt(until.Unix(), 10))
	}

	var scan ActiveScan
	seen := make(map[string]struct{})
	res := d.client.Events(q).Each(ctx, func(events []frontapi.Event) (bool, error) {
		for _, ev := range events {
			if scan.EventsScanned >= maxEvents {
				scan.Truncated = true
				return false, nil
			}
			scan.EventsScanned++
			if _, ok := allowed[ev.Type]; !ok || ev.Conversation == nil || ev.Conversation.ID == "" {
				continue
			}
			if _, dup := seen[ev.Conversation.ID]; dup {
				continue
			}
			seen[ev.Conversation.ID] = struct{}{}
			scan.IDs = append(scan.IDs, ev.Conversation.ID)
		}
		return true, nil
	})
	scan.Err = res.Err
	metrics.AddChangeEventsScanned(scan.EventsScanned)

	if scan.Truncated {
		d.logger.Warn("Event scan reached budget, window truncated",
			zap.Int("max_events", maxEvents),
			zap.Time("since", since),
		)
	}
	return scan
}

// NewConversationIDs 从最新会话列表中找出 since 之后创建的会话，遇到第一个更早的即停止。
// 最多扫描 NewConversationPages 页。
func (d *Detector) NewConversationIDs(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	res := d.client.Conversations(nil).
		WithMaxPages(d.cfg.NewConversationPages).
		Each(ctx, func(convs []frontapi.Conversation) (bool, error) {
			for _, c := range convs {
				created, err := upsert.ParseTimestamp(c.CreatedAt)
				if err != nil || created == nil {
					d.logger.Warn("Conversation without usable created_at in new-conversation scan",
						zap.String("conversation_id", c.ID),
						zap.Any("created_at", c.CreatedAt),
					)
					continue
				}
				if created.Before(since) {
					return false, nil
				}
				ids = append(ids, c.ID)
			}
			return true, nil
		})
	if res.Truncated {
		d.logger.Warn("New conversation scan hit page limit, later conversations left to full sync",
			zap.Int("max_pages", d.cfg.NewConversationPages),
		)
	}
	return ids, res.Err
}

// Detect 事件扫描 + 新会话扫描，返回有序去重的并集（活动在前）
func (d *Detector) Detect(ctx context.Context, w Window) Result {
	start := d.now()
	until := start
	if w.Until != nil {
		until = *w.Until
	}
	out := Result{Since: w.Since, Until: until, ConversationIDs: []string{}}

	active := d.ActiveConversationIDs(ctx, w.Since, w.Until, w.MaxEvents)
	out.EventsScanned = active.EventsScanned
	out.Truncated = active.Truncated
	if active.Err != nil {
		out.Errors = append(out.Errors, "events: "+active.Err.Error())
	}

	seen := make(map[string]struct{}, len(active.IDs))
	for _, id := range active.IDs {
		seen[id] = struct{}{}
		out.ConversationIDs = append(out.ConversationIDs, id)
	}
	out.ActiveCount = len(active.IDs)

	fresh, err := d.NewConversationIDs(ctx, w.Since)
	if err != nil {
		out.Errors = append(out.Errors, "new conversations: "+err.Error())
	}
	for _, id := range fresh {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out.ConversationIDs = append(out.ConversationIDs, id)
		out.NewCount++
	}

	out.Duration = d.now().Sub(start)
	d.logger.Info("Change detection finished",
		zap.Int("active", out.ActiveCount),
		zap.Int("new", out.NewCount),
		zap.Int("events_scanned", out.EventsScanned),
		zap.Bool("truncated", out.Truncated),
		zap.Duration("duration", out.Duration),
	)
	return out
}
