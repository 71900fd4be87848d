// Package app 放置跨命令共享的编排辅助逻辑。
package app

import (
	"sort"
	"strings"

	"github.com/John-Robertt/geeharvest/internal/domain"
)

// UniqueURLs 把 URL 去空白、去重，并按字典序稳定排序。空白 URL 被丢弃。
func UniqueURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// StubURLs 从目录条目中取出待抓取的 URL 列表。
//
// - 返回值已去重、排序（同 UniqueURLs）
// - skipped 是 url 为空白的条目数（上层写入报告）
func StubURLs(stubs []domain.DatasetStub) (urls []string, skipped int) {
	raw := make([]string, 0, len(stubs))
	for i := range stubs {
		if strings.TrimSpace(stubs[i].URL) == "" {
			skipped++
			continue
		}
		raw = append(raw, stubs[i].URL)
	}
	return UniqueURLs(raw), skipped
}
