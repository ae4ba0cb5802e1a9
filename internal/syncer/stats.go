package syncer

import (
	"fmt"
	"time"

	"frontsync/internal/upsert"
)

// MaxErrors Stats 中最多保留的错误信息条数
const MaxErrors = 100

// PhaseSummary 单个阶段的汇总
type PhaseSummary struct {
	Resource ResourceType  `json:"resource"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	// NotRun 阶段因熔断器打开被跳过
	NotRun bool `json:"not_run,omitempty"`
	// Incomplete 远端获取中途失败，只处理了部分数据
	Incomplete bool `json:"incomplete,omitempty"`
}

// Stats 一次同步的聚合统计，错误信息有上限
type Stats struct {
	Created             int            `json:"created"`
	Updated             int            `json:"updated"`
	Skipped             int            `json:"skipped"`
	Failed              int            `json:"failed"`
	AssociationsAdded   int            `json:"associations_added"`
	AssociationsRemoved int            `json:"associations_removed"`
	Unresolved          int            `json:"unresolved"`
	Errors              []string       `json:"errors"`
	ErrorsTruncated     int            `json:"errors_truncated,omitempty"`
	Phases              []PhaseSummary `json:"phases,omitempty"`
}

// Record 计入一条 upsert 结果
func (s *Stats) Record(action upsert.Action, err error) {
	switch action {
	case upsert.ActionCreated:
		s.Created++
	case upsert.ActionUpdated:
		s.Updated++
	case upsert.ActionSkipped:
		s.Skipped++
	case upsert.ActionFailed:
		s.Failed++
		if err != nil {
			s.AddError(err.Error())
		}
	}
}

// AddError 追加错误信息，超过上限只计数
func (s *Stats) AddError(msg string) {
	if len(s.Errors) >= MaxErrors {
		s.ErrorsTruncated++
		return
	}
	s.Errors = append(s.Errors, msg)
}

func (s *Stats) AddErrorf(format string, args ...any) {
	s.AddError(fmt.Sprintf(format, args...))
}

// Merge 合并另一个阶段的统计
func (s *Stats) Merge(o Stats) {
	s.Created += o.Created
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.AssociationsAdded += o.AssociationsAdded
	s.AssociationsRemoved += o.AssociationsRemoved
	s.Unresolved += o.Unresolved
	for _, e := range o.Errors {
		s.AddError(e)
	}
	s.ErrorsTruncated += o.ErrorsTruncated
	s.Phases = append(s.Phases, o.Phases...)
}

// Changes 新建加更新的数量
func (s *Stats) Changes() int {
	return s.Created + s.Updated
}

// Incomplete 是否有阶段未运行或未完整运行
func (s *Stats) Incomplete() bool {
	for _, p := range s.Phases {
		if p.NotRun || p.Incomplete {
			return true
		}
	}
	return false
}

func (s *Stats) ensureErrors() {
	if s.Errors == nil {
		s.Errors = []string{}
	}
}
