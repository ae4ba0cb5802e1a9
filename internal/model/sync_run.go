package model

import "time"

type SyncMode string

const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
	SyncModeTargeted    SyncMode = "targeted"
)

type SyncRunStatus string

const (
	SyncRunRunning   SyncRunStatus = "running"
	SyncRunCompleted SyncRunStatus = "completed"
	SyncRunError     SyncRunStatus = "error"
)

// SyncRun 每次编排调用对应一条记录
type SyncRun struct {
	ID         string        `json:"id"`
	Mode       SyncMode      `json:"mode"`
	Status     SyncRunStatus `json:"status"`
	Since      *time.Time    `json:"since,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Errors     []string      `json:"errors,omitempty"`
}

// IsStuck 运行中且超过阈值视为卡住（只用于监控，不会被自动终止）
func (r *SyncRun) IsStuck(now time.Time, threshold time.Duration) bool {
	return r.Status == SyncRunRunning && now.Sub(r.StartedAt) > threshold
}
