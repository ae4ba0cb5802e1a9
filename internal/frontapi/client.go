// Package frontapi 远端会话管理 API 的 HTTP 客户端和分页器。
package frontapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"frontsync/pkg/otel"
)

var ErrCircuitOpen = errors.New("front api: circuit breaker open, call skipped")

// HTTPError 非 2xx 响应
type HTTPError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("front api %s %s: http %d: %s", e.Method, e.Endpoint, e.StatusCode, body)
}

func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// Guard 每次调用前询问是否放行，调用后上报结果（由 health.Monitor 实现）
type Guard interface {
	Allow(ctx context.Context) bool
	RecordCall(ctx context.Context, endpoint string, duration time.Duration, err error)
}

type Config struct {
	BaseURL               string
	Token                 string
	PageLimit             int
	MaxRetries            int
	BaseDelay             time.Duration
	MaxDelay              time.Duration
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:               "https://api2.frontapp.com",
		PageLimit:             100,
		MaxRetries:            2,
		BaseDelay:             time.Second,
		MaxDelay:              30 * time.Second,
		DialTimeout:           10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

type Client struct {
	baseURL    string
	token      string
	pageLimit  int
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	httpClient *http.Client
	guard      Guard
	logger     *zap.Logger
}

func NewClient(cfg Config, guard Guard, logger *zap.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.ResponseHeaderTimeout <= 0 {
		cfg.ResponseHeaderTimeout = def.ResponseHeaderTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		pageLimit:  cfg.PageLimit,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		httpClient: &http.Client{Transport: transport},
		guard:      guard,
		logger:     logger,
	}
}

// WithHTTPClient 替换底层 http.Client（测试用）
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// GetJSON GET 一个路径或完整 URL（分页 next 链接），解码到 out
func (c *Client) GetJSON(ctx context.Context, pathOrURL string, query url.Values, out any) error {
	target := pathOrURL
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(pathOrURL, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	endpoint := EndpointLabel(target)

	ctx, span := otel.StartSpan(ctx, "front.GET "+endpoint)
	defer span.End()

	for attempt := 0; ; attempt++ {
		if c.guard != nil && !c.guard.Allow(ctx) {
			return ErrCircuitOpen
		}

		start := time.Now()
		payload, retryAfter, err := c.do(ctx, target, endpoint)
		if c.guard != nil {
			c.guard.RecordCall(ctx, endpoint, time.Since(start), err)
		}
		if err == nil {
			if out == nil || len(payload) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return fmt.Errorf("decode %s: %w", endpoint, err)
			}
			return nil
		}

		var httpErr *HTTPError
		retryable := errors.As(err, &httpErr) &&
			(httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500)
		if !retryable || attempt >= c.maxRetries {
			otel.RecordError(span, err)
			return err
		}

		delay := c.retryDelay(attempt+1, retryAfter)
		c.logger.Warn("Front API call failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("status", httpErr.StatusCode),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		if waitErr := sleepContext(ctx, delay); waitErr != nil {
			return waitErr
		}
	}
}

func (c *Client) do(ctx context.Context, target, endpoint string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("front api GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("front api GET %s: read body: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header.Get("Retry-After"), &HTTPError{
			Method:     http.MethodGet,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, "", nil
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var idSegment = regexp.MustCompile(`^[a-z]{3}_[A-Za-z0-9]+$`)

// EndpointLabel 去掉 host、查询串和资源 ID，得到低基数的指标标签
func EndpointLabel(target string) string {
	path := target
	if u, err := url.Parse(target); err == nil && u.Path != "" {
		path = u.Path
	} else if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
