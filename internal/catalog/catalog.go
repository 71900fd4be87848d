// Package catalog 抓取数据集目录页，产出 DatasetStub 列表。
//
// 只解析单个目录页；条目保持页面中的顺序。同时具备 URL 与标题的条目才会保留。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/geeharvest/internal/domain"
)

const itemSelector = "li.ee-sample-image.ee-cards.devsite-landing-row-item-description"

// Options 控制目录抓取。
type Options struct {
	CatalogURL string
	// Transport 为 nil 时使用 colly 默认 Transport。
	Transport http.RoundTripper
	// UserAgent 为空时不设置，由 Transport 决定（httpx 会从 UA 池随机选取）。
	UserAgent string
	Timeout   time.Duration
	Logger    *zerolog.Logger
}

// List 抓取 opts.CatalogURL 并解析目录条目。
func List(ctx context.Context, opts Options) ([]domain.DatasetStub, error) {
	base, err := url.Parse(strings.TrimSpace(opts.CatalogURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("catalog_url 无效：%q", opts.CatalogURL)
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	// 详情链接必须是目录路径下的站内相对链接。
	prefix := strings.TrimRight(base.Path, "/") + "/"
	origin := base.Scheme + "://" + base.Host

	c := colly.NewCollector()
	if opts.Transport != nil {
		c.WithTransport(opts.Transport)
	}
	if opts.Timeout > 0 {
		c.SetRequestTimeout(opts.Timeout)
	}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		c.UserAgent = ua
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if strings.TrimSpace(opts.UserAgent) == "" {
			r.Headers.Del("User-Agent")
		}
		log.Debug().Str("url", r.URL.String()).Msg("抓取目录页")
	})

	stubs := make([]domain.DatasetStub, 0, 256)
	skipped := 0
	c.OnHTML(itemSelector, func(e *colly.HTMLElement) {
		s, ok := parseItem(e.DOM, prefix, origin)
		if !ok {
			skipped++
			return
		}
		stubs = append(stubs, s)
	})

	if err := c.Visit(base.String()); err != nil {
		return nil, fmt.Errorf("抓取目录页失败：%w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(stubs) == 0 && skipped == 0 {
		return nil, errors.New("目录页中没有找到任何数据集条目（页面结构可能变化）")
	}

	log.Info().Int("datasets", len(stubs)).Int("skipped", skipped).Msg("目录解析完成")
	return stubs, nil
}

// parseItem 解析单个目录卡片；缺少站内链接或标题时返回 false。
func parseItem(li *goquery.Selection, prefix, origin string) (domain.DatasetStub, bool) {
	a := li.Find("a[href]").First()
	href, _ := a.Attr("href")
	if a.Length() == 0 || !strings.HasPrefix(href, prefix) {
		return domain.DatasetStub{}, false
	}

	h3 := a.Find("h3").First()
	title := collapse(h3.Text())
	if h3.Length() == 0 || title == "" {
		return domain.DatasetStub{}, false
	}

	s := domain.DatasetStub{
		URL:   origin + href,
		Title: &title,
		Tags:  []string{},
	}
	if td := li.Find("td.ee-dataset-description-snippet").First(); td.Length() > 0 {
		d := collapse(td.Text())
		s.Description = &d
	}
	li.Find("td.ee-tag-buttons a.ee-tag").Each(func(_ int, t *goquery.Selection) {
		s.Tags = append(s.Tags, collapse(t.Text()))
	})
	return s, true
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }
