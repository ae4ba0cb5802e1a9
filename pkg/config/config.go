package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
)

// DBConfig PostgreSQL 连接配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// DSN 拼接 pgx 连接串，用户名和密码做 URL 转义
func (c DBConfig) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}

func (c *DBConfig) BindEnv(e *Env) {
	e.String("DB_HOST", &c.Host)
	e.Int("DB_PORT", &c.Port)
	e.String("DB_USER", &c.User)
	e.String("DB_PASSWORD", &c.Password)
	e.String("DB_NAME", &c.Name)
	e.String("DB_SSLMODE", &c.SSLMode)
	e.Int32("DB_MAX_CONNS", &c.MaxConns)
}

// MQConfig RabbitMQ 连接
type MQConfig struct {
	URL string `yaml:"url"`
}

func (c *MQConfig) BindEnv(e *Env) {
	e.String("MQ_URL", &c.URL)
}

// RedisConfig 熔断状态和去重键所在的 Redis
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c *RedisConfig) BindEnv(e *Env) {
	e.String("REDIS_ADDR", &c.Addr)
	e.String("REDIS_PASSWORD", &c.Password)
	e.Int("REDIS_DB", &c.DB)
}

// JWTConfig 管理接口的签名密钥
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

func (c *JWTConfig) BindEnv(e *Env) {
	e.String("JWT_SECRET", &c.Secret)
}

// ServerConfig 管理 HTTP 服务监听地址
type ServerConfig struct {
	Port string `yaml:"port"`
}

func (c *ServerConfig) BindEnv(e *Env) {
	e.String("SERVER_PORT", &c.Port)
}

// Env 把环境变量写入配置字段。未设置或为空的变量不覆盖；
// 数值解析失败会被收集起来，由 Err 一次性返回。
type Env struct {
	lookup func(string) (string, bool)
	errs   []error
}

// NewEnv lookup 为 nil 时读取进程环境变量
func NewEnv(lookup func(string) (string, bool)) *Env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Env{lookup: lookup}
}

func (e *Env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	return v, ok && v != ""
}

func (e *Env) String(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *Env) Int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return
	}
	*dst = n
}

func (e *Env) Int32(key string, dst *int32) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return
	}
	*dst = int32(n)
}

// Err 所有绑定过程中的解析错误
func (e *Env) Err() error {
	return errors.Join(e.errs...)
}
