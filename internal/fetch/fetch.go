// Package fetch 定义“给定 URL 取回页面 body”的能力边界。
//
// 约束：
// - Fetcher 无状态、可被多个 goroutine 并发调用
// - 不做缓存、不做限速；超时由调用方通过 ctx 控制
// - 非 2xx 视为失败，返回 *Error（内含 *HTTPStatusError）
package fetch

import (
	"context"
	"fmt"
	"strings"
)

// Fetcher 取回单个页面的 body。
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Func 把普通函数适配为 Fetcher。
type Func func(ctx context.Context, url string) ([]byte, error)

func (f Func) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// Error 表示单个 URL 抓取失败（网络错误/超时/非 2xx）。
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return "fetch error"
	}
	return fmt.Sprintf("抓取失败 url=%s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}
