package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/geeharvest/internal/extract"
	"github.com/John-Robertt/geeharvest/internal/fetch"
)

func humanizeFetchError(err error) string {
	if err == nil {
		return "抓取失败"
	}

	// HTTP 非 2xx：尽量给出可操作提示（限流/下架最常见）。
	var hs *fetch.HTTPStatusError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case 403, 429:
			return fmt.Sprintf("返回 HTTP %d（可能触发限流）。建议降低并发或配置 proxy.url。", hs.StatusCode)
		case 404:
			return "返回 HTTP 404（数据集页面可能已下架或 URL 有误）。"
		default:
			if loc := strings.TrimSpace(hs.Location); loc != "" {
				return fmt.Sprintf("返回 HTTP %d（重定向）：%s", hs.StatusCode, loc)
			}
			return fmt.Sprintf("返回 HTTP %d。", hs.StatusCode)
		}
	}

	if errors.Is(err, context.Canceled) {
		return "已取消。"
	}
	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return "抓取超时。建议检查网络/代理，或调大 timeout 后重试。"
	}
	if strings.Contains(low, "tls") || strings.Contains(low, "handshake") {
		return "连接失败（TLS 握手异常）。建议配置 proxy.url 或稍后重试。"
	}

	var fe *fetch.Error
	if errors.As(err, &fe) && fe.Err != nil {
		return fmt.Sprintf("抓取失败：%v", fe.Err)
	}
	return fmt.Sprintf("抓取失败：%v", err)
}

func humanizeParseError(err error) string {
	if err == nil {
		return "解析失败"
	}
	var pe *extract.ParseError
	if errors.As(err, &pe) && pe.Err != nil {
		err = pe.Err
	}
	return fmt.Sprintf("解析失败（页面结构可能变化或返回了非详情页内容）：%v", err)
}
