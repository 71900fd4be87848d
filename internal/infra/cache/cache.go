// Package cache 把抓取到的详情页原文归档到 <archive_dir>/pages/ 下，并支持从归档回放。
//
// 回放是完整重新抽取（每次都重新解析全部页面），不是增量抓取。
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kennygrant/sanitize"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/geeharvest/internal/fetch"
	"github.com/John-Robertt/geeharvest/internal/infra/fsx"
)

// Store 提供页面归档的文件读写。
//
// 约束：
// - ReadOnly=true（回放）时只允许读
// - 文件名由 URL 派生且稳定：同一 URL 总是落到同一路径
type Store struct {
	Root     string
	ReadOnly bool
}

var (
	ErrReadOnly = errors.New("cache: read-only")
	// ErrNotArchived 表示回放时归档中没有该 URL。
	ErrNotArchived = errors.New("cache: 页面未归档")
)

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// PagePath 返回 pageURL 对应归档文件的绝对路径：pages/<host>/<path-slug>-<hash>.html。
func (s Store) PagePath(pageURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return "", fmt.Errorf("URL 无效 %q：%w", pageURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL 缺少 host：%q", pageURL)
	}

	slug := sanitize.BaseName(strings.ReplaceAll(strings.Trim(u.Path, "/"), "/", "_"))
	if slug == "" {
		slug = "index"
	}
	sum := sha256.Sum256([]byte(u.String()))
	name := slug + "-" + hex.EncodeToString(sum[:4]) + ".html"
	host := strings.Trim(sanitize.BaseName(u.Host), ".")
	if host == "" {
		host = "_"
	}
	return filepath.Join(s.Root, "pages", host, name), nil
}

func (s Store) ReadPage(pageURL string) ([]byte, bool, error) {
	path, err := s.PagePath(pageURL)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WritePage(pageURL string, body []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.PagePath(pageURL)
	if err != nil {
		return err
	}
	return fsx.WriteFile(path, body)
}

// Archiving 包装 next：抓取成功后把 body 写入归档。归档失败只记日志，不影响抓取结果。
func Archiving(next fetch.Fetcher, s Store, log zerolog.Logger) fetch.Fetcher {
	return fetch.Func(func(ctx context.Context, pageURL string) ([]byte, error) {
		body, err := next.Fetch(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		if werr := s.WritePage(pageURL, body); werr != nil {
			log.Warn().Str("url", pageURL).Err(werr).Msg("页面归档失败")
		}
		return body, nil
	})
}

// Replay 返回一个只从归档读取页面的 Fetcher。
func Replay(s Store) fetch.Fetcher {
	return fetch.Func(func(ctx context.Context, pageURL string) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, &fetch.Error{URL: pageURL, Err: err}
		}
		b, ok, err := s.ReadPage(pageURL)
		if err != nil {
			return nil, &fetch.Error{URL: pageURL, Err: err}
		}
		if !ok {
			return nil, &fetch.Error{URL: pageURL, Err: ErrNotArchived}
		}
		return b, nil
	})
}
