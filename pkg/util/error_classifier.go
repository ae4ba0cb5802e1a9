package util

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// 失败模式，用于健康统计
const (
	FailureTimeout     = "timeout"
	FailureRateLimit   = "rate_limit"
	FailureAuth        = "auth"
	FailureNotFound    = "not_found"
	FailureServerError = "server_error"
	FailureNetwork     = "network"
	FailureOther       = "other"
)

// StatusCoder 由携带 HTTP 状态码的错误实现
type StatusCoder interface {
	HTTPStatus() int
}

func statusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// ClassifyFailure 把远端调用失败归类为固定的几种模式
func ClassifyFailure(err error) string {
	if err == nil {
		return ""
	}

	switch status := statusOf(err); {
	case status == 429:
		return FailureRateLimit
	case status == 401 || status == 403:
		return FailureAuth
	case status == 404:
		return FailureNotFound
	case status >= 500:
		return FailureServerError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return FailureNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return FailureTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return FailureRateLimit
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden"):
		return FailureAuth
	case strings.Contains(msg, "not found"):
		return FailureNotFound
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") || strings.Contains(msg, "connection reset"):
		return FailureNetwork
	}
	return FailureOther
}
