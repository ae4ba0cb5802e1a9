package circuitbreaker

import (
	"context"
	"time"

	"frontsync/pkg/kv"
)

// State 表示熔断器状态
type State string

const (
	StateClosed   State = "closed"    // 关闭：正常状态，允许请求通过
	StateOpen     State = "open"      // 打开：熔断状态，直接拒绝请求
	StateHalfOpen State = "half_open" // 半开：冷却结束，允许试探请求
)

// Config 熔断器配置
type Config struct {
	// 失败阈值：连续失败多少次后打开熔断器
	FailureThreshold int
	// 冷却时间：打开状态持续多久后允许再次尝试
	Cooldown time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,               // 连续失败5次后打开
		Cooldown:         5 * time.Minute, // 冷却5分钟
	}
}

// Snapshot 持久化的熔断器状态，所有进程共享
type Snapshot struct {
	Open                bool       `json:"open"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	NextAttemptAt       *time.Time `json:"next_attempt_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
}

// StateAt 计算某一时刻的逻辑状态
func (s Snapshot) StateAt(now time.Time) State {
	if !s.Open {
		return StateClosed
	}
	if s.NextAttemptAt != nil && !now.Before(*s.NextAttemptAt) {
		return StateHalfOpen
	}
	return StateOpen
}

// CircuitBreaker 熔断器，状态保存在 kv.Store 中，读-改-写通过 Update 保证原子
type CircuitBreaker struct {
	config Config
	store  kv.Store
	key    string
	now    func() time.Time
}

// NewCircuitBreaker 创建新的熔断器
func NewCircuitBreaker(name string, config Config, store kv.Store) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultConfig().Cooldown
	}
	return &CircuitBreaker{
		config: config,
		store:  store,
		key:    "circuit_breaker:" + name,
		now:    time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

func (cb *CircuitBreaker) Config() Config {
	return cb.config
}

// Allow 判断当前是否允许调用远端
// 冷却结束后允许请求通过（半开），由下一次结果决定关闭还是重新打开
func (cb *CircuitBreaker) Allow(ctx context.Context) (bool, error) {
	snap, err := cb.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.StateAt(cb.now()) != StateOpen, nil
}

// RecordSuccess 成功：清零连续失败次数并关闭熔断器
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := cb.store.Update(ctx, cb.key, &snap, func(bool) error {
		snap.ConsecutiveFailures = 0
		snap.Open = false
		snap.NextAttemptAt = nil
		snap.OpenedAt = nil
		return nil
	})
	return snap, err
}

// RecordFailure 失败：计数加一，达到阈值时打开并设置下次可尝试时间
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, cause error) (Snapshot, error) {
	var snap Snapshot
	err := cb.store.Update(ctx, cb.key, &snap, func(bool) error {
		now := cb.now()
		snap.ConsecutiveFailures++
		snap.LastFailureAt = &now
		if cause != nil {
			snap.LastError = cause.Error()
		}
		if snap.ConsecutiveFailures >= cb.config.FailureThreshold {
			next := now.Add(cb.config.Cooldown)
			if !snap.Open {
				snap.OpenedAt = &now
			}
			snap.Open = true
			snap.NextAttemptAt = &next
		}
		return nil
	})
	return snap, err
}

// Snapshot 读取当前持久化状态
func (cb *CircuitBreaker) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if _, err := cb.store.Get(ctx, cb.key, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// GetState 获取当前状态
func (cb *CircuitBreaker) GetState(ctx context.Context) (State, error) {
	snap, err := cb.Snapshot(ctx)
	if err != nil {
		return StateClosed, err
	}
	return snap.StateAt(cb.now()), nil
}

// Reset 重置熔断器（运维手动操作）
func (cb *CircuitBreaker) Reset(ctx context.Context) error {
	return cb.store.Set(ctx, cb.key, Snapshot{})
}
