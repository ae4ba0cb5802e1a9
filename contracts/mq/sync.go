package mq

import "time"

const (
	RoutingKeySyncRunCompleted   = "sync.run.completed"
	RoutingKeyConversationResync = "front.conversation.resync"
	AggregateTypeSyncRun         = "sync_run"
)

// SyncRunCompletedPayload 同步运行结束事件
type SyncRunCompletedPayload struct {
	RunID      string     `json:"run_id"`
	Mode       string     `json:"mode"`
	Status     string     `json:"status"`
	Since      *time.Time `json:"since,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	ErrorCount int        `json:"error_count"`
	TraceID    string     `json:"trace_id,omitempty"`
}

// ConversationResyncPayload 请求重新同步指定会话
type ConversationResyncPayload struct {
	ConversationIDs []string `json:"conversation_ids"`
	WithMessages    bool     `json:"with_messages"`
	RequestedBy     string   `json:"requested_by,omitempty"`
	TraceID         string   `json:"trace_id,omitempty"`
}
