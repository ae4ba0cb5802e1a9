// Package config 同步服务的类型化配置。
package config

import (
	"fmt"
	"time"

	"frontsync/pkg/config"
)

type FrontConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	PageLimit  int           `yaml:"page_limit"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

type SyncConfig struct {
	IncrementalInterval   time.Duration `yaml:"incremental_interval"`
	FullInterval          time.Duration `yaml:"full_interval"`
	Overlap               time.Duration `yaml:"overlap"`
	MaxEvents             int           `yaml:"max_events"`
	NewConversationPages  int           `yaml:"new_conversation_pages"`
	IncludeComments       bool          `yaml:"include_comments"`
	FoundationConcurrency bool          `yaml:"foundation_concurrency"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

type HealthConfig struct {
	StuckAfter time.Duration `yaml:"stuck_after"`
}

type ResyncConfig struct {
	Queue      string        `yaml:"queue"`
	RoutingKey string        `yaml:"routing_key"`
	DedupTTL   time.Duration `yaml:"dedup_ttl"`
	MaxRetries int64         `yaml:"max_retries"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type OTelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type Config struct {
	Env      string              `yaml:"-"`
	LogLevel string              `yaml:"log_level"`
	DB       config.DBConfig     `yaml:"db"`
	Redis    config.RedisConfig  `yaml:"redis"`
	MQ       config.MQConfig     `yaml:"mq"`
	JWT      config.JWTConfig    `yaml:"jwt"`
	Server   config.ServerConfig `yaml:"server"`
	Front    FrontConfig         `yaml:"front"`
	Sync     SyncConfig          `yaml:"sync"`
	Breaker  BreakerConfig       `yaml:"breaker"`
	Health   HealthConfig        `yaml:"health"`
	Resync   ResyncConfig        `yaml:"resync"`
	Outbox   OutboxConfig        `yaml:"outbox"`
	OTel     OTelConfig          `yaml:"otel"`
	// SlowQueryThreshold 超过该时长的 SQL 记 slow-query 日志
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
}

// Load 读取 config/base.yaml + config/<CONFIG_ENV>.yaml，再用环境变量覆盖
func Load(configDir string) (*Config, error) {
	env := config.GetConfigEnv()
	raw, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}
	cfg := Defaults()
	if err := config.Decode(raw, cfg); err != nil {
		return nil, err
	}
	cfg.Env = env

	envs := config.NewEnv(nil)
	cfg.DB.BindEnv(envs)
	cfg.Redis.BindEnv(envs)
	cfg.MQ.BindEnv(envs)
	cfg.JWT.BindEnv(envs)
	cfg.Server.BindEnv(envs)
	cfg.Front.bindEnv(envs)
	if err := envs.Err(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults 配置文件缺省字段的默认值
func Defaults() *Config {
	return &Config{
		LogLevel:           "info",
		SlowQueryThreshold: 200 * time.Millisecond,
		Server:             config.ServerConfig{Port: ":8090"},
		Front: FrontConfig{
			BaseURL:    "https://api2.frontapp.com",
			PageLimit:  100,
			MaxRetries: 2,
			RetryDelay: time.Second,
			MaxDelay:   30 * time.Second,
		},
		Sync: SyncConfig{
			IncrementalInterval:  5 * time.Minute,
			FullInterval:         24 * time.Hour,
			Overlap:              2 * time.Minute,
			MaxEvents:            1000,
			NewConversationPages: 10,
			IncludeComments:      true,
		},
		Breaker: BreakerConfig{FailureThreshold: 5, Cooldown: 5 * time.Minute},
		Health:  HealthConfig{StuckAfter: 2 * time.Hour},
		Resync: ResyncConfig{
			Queue:      "front.conversation.resync.q",
			RoutingKey: "front.conversation.resync",
			DedupTTL:   10 * time.Minute,
			MaxRetries: 5,
		},
		Outbox: OutboxConfig{Interval: time.Second, BatchSize: 100, MaxRetries: 5},
		OTel:   OTelConfig{SampleRatio: 1.0},
	}
}

func (c *Config) Validate() error {
	if c.Front.Token == "" {
		return fmt.Errorf("front.token is required (set FRONT_API_TOKEN)")
	}
	if c.Front.PageLimit <= 0 || c.Front.PageLimit > 100 {
		return fmt.Errorf("front.page_limit must be between 1 and 100, got %d", c.Front.PageLimit)
	}
	if c.Sync.IncrementalInterval <= 0 || c.Sync.FullInterval <= 0 {
		return fmt.Errorf("sync intervals must be positive")
	}
	if c.Outbox.Interval <= 0 || c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.interval and outbox.batch_size must be positive")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be positive")
	}
	return nil
}

func (c *FrontConfig) bindEnv(e *config.Env) {
	e.String("FRONT_API_TOKEN", &c.Token)
	e.String("FRONT_BASE_URL", &c.BaseURL)
	e.Int("FRONT_PAGE_LIMIT", &c.PageLimit)
}
