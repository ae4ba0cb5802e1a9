package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 远端 API 调用延迟（毫秒）
	RemoteCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "front_api_call_latency_ms",
			Help:    "Remote API call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(25, 2, 10), // 25ms to ~12s
		},
		[]string{"endpoint", "status"},
	)

	// Upsert 结果计数
	UpsertOutcomeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_upsert_outcome_total",
			Help: "Total number of upsert outcomes by resource and action",
		},
		[]string{"resource", "action"}, // action: created, updated, skipped, failed
	)

	// 同步阶段耗时（秒）
	SyncPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_phase_duration_seconds",
			Help:    "Duration of each sync phase in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27m
		},
		[]string{"resource", "mode"},
	)

	// 关联关系变更计数
	RelationChangeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_relation_changes_total",
			Help: "Join rows added or removed during reconciliation",
		},
		[]string{"relation", "op"}, // op: add, remove
	)

	// 变更检测扫描的事件数
	ChangeEventsScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_change_events_scanned_total",
			Help: "Events scanned by the change detector",
		},
	)

	// 熔断器状态：0 closed, 1 half_open, 2 open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half_open, 2 open)",
		},
		[]string{"name"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// 慢查询耗时（秒）
	SlowQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"operation"},
	)

	// 同步运行计数
	SyncRunCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Completed sync runs by mode and status",
		},
		[]string{"mode", "status"},
	)

	// Outbox 投递计数
	OutboxDispatchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dispatch_total",
			Help: "Outbox events dispatched by result",
		},
		[]string{"event_type", "result"}, // result: published, failed
	)
)

// RecordRemoteCall 记录远端调用延迟
func RecordRemoteCall(endpoint, status string, duration time.Duration) {
	RemoteCallLatency.WithLabelValues(endpoint, status).Observe(float64(duration.Milliseconds()))
}

// IncrementUpsertOutcome 增加 upsert 结果计数
func IncrementUpsertOutcome(resource, action string) {
	UpsertOutcomeCount.WithLabelValues(resource, action).Inc()
}

// RecordSyncPhase 记录同步阶段耗时
func RecordSyncPhase(resource, mode string, duration time.Duration) {
	SyncPhaseDuration.WithLabelValues(resource, mode).Observe(duration.Seconds())
}

// AddRelationChanges 记录关联关系增删数量
func AddRelationChanges(relation string, added, removed int) {
	RelationChangeCount.WithLabelValues(relation, "add").Add(float64(added))
	RelationChangeCount.WithLabelValues(relation, "remove").Add(float64(removed))
}

// AddChangeEventsScanned 累加扫描事件数
func AddChangeEventsScanned(n int) {
	ChangeEventsScanned.Add(float64(n))
}

// SetCircuitBreakerState 更新熔断器状态
func SetCircuitBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery 记录一次慢查询，按 SQL 首个关键字分类避免标签基数过大
func IncrementSlowQuery(sql string, duration time.Duration) {
	op := queryOperation(sql)
	SlowQueryCount.WithLabelValues(op).Inc()
	SlowQueryDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func queryOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

// IncrementSyncRun 记录一次同步运行
func IncrementSyncRun(mode, status string) {
	SyncRunCount.WithLabelValues(mode, status).Inc()
}

// IncrementOutboxDispatch 记录 outbox 投递结果
func IncrementOutboxDispatch(eventType, result string) {
	OutboxDispatchCount.WithLabelValues(eventType, result).Inc()
}
