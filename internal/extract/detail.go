// Package extract 把数据集详情页 HTML 解析为 domain.DatasetDetail。
//
// 约束：
// - Detail 必须是纯函数：相同 (pageURL, body) => 相同输出
// - 任一步骤出现意外（解析失败/panic）整页视为失败，不返回半成品
// - 不做网络访问、不做缓存
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/John-Robertt/geeharvest/internal/domain"
	"github.com/John-Robertt/geeharvest/internal/selector"
)

var (
	// ee_code 的候选：按优先级尝试（不是按文档顺序）。
	eeCodeCandidates = []selector.Selector{
		selector.CSS("code.lang-js"),
		selector.CSS("code.devsite-click-to-copy"),
	}
	providerSel    = selector.CSS(`span[itemprop="provider"] span[itemprop="name"]`)
	descriptionSel = selector.CSS(`div[itemprop="description"]`)
	jsCodeSel      = selector.XPath(`//pre[@data-code-snippet="true"]`)

	bandsHeadingSel = selector.XPath(`//h3[@id="bands"]`)
	bandsPanelSel   = selector.CSS("#tabpanel-bands")
)

// ParseError 表示详情页结构异常导致整页无法抽取。
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	return fmt.Sprintf("解析失败 url=%s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Detail 把单个详情页解析为 DatasetDetail。
//
// 找不到波段面板不是错误：bands/classifications 为空即可。
func Detail(pageURL string, body []byte) (d domain.DatasetDetail, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = domain.DatasetDetail{}
			err = &ParseError{URL: pageURL, Err: fmt.Errorf("抽取过程 panic：%v", r)}
		}
	}()

	if strings.TrimSpace(pageURL) == "" {
		return domain.DatasetDetail{}, &ParseError{URL: pageURL, Err: errors.New("pageURL 不能为空")}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.DatasetDetail{}, &ParseError{URL: pageURL, Err: errors.New("html 为空")}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.DatasetDetail{}, &ParseError{URL: pageURL, Err: err}
	}
	root := doc.Get(0)

	d = domain.DatasetDetail{URL: pageURL}

	if n, _ := selector.FindFirst(root, eeCodeCandidates...); n != nil {
		d.EECode = matched(strippedText(n, ""))
	}
	if n, _ := selector.FindFirst(root, providerSel); n != nil {
		d.Provider = matched(strippedText(n, ""))
	}
	if n, _ := selector.FindFirst(root, descriptionSel); n != nil {
		h, err := goquery.OuterHtml(doc.FindNodes(n))
		if err != nil {
			return domain.DatasetDetail{}, &ParseError{URL: pageURL, Err: fmt.Errorf("渲染 description 失败：%w", err)}
		}
		d.DescriptionHTML = matched(strings.TrimSpace(h))
	}
	if n, _ := selector.FindFirst(root, jsCodeSel); n != nil {
		d.JSCode = matched(strings.TrimSpace(doc.FindNodes(n).Text()))
	}

	if panel := findBandsPanel(doc); panel != nil {
		d.PixelSize = pixelSize(panel)
		d.Bands, d.Classifications = panelTables(panel)
	}

	d.Normalize()
	return d, nil
}

// matched 用于已命中的元素：内容为空时保留 ""，与元素缺失（nil）区分。
func matched(s string) *string { return &s }

// findBandsPanel 先找 h3#bands 所在的 section；缺失时回退固定的 #tabpanel-bands。
func findBandsPanel(doc *goquery.Document) *goquery.Selection {
	root := doc.Get(0)
	if h, _ := selector.FindFirst(root, bandsHeadingSel); h != nil {
		if sec := doc.FindNodes(h).ParentsFiltered("section").First(); sec.Length() > 0 {
			return sec
		}
	}
	if n, _ := selector.FindFirst(root, bandsPanelSel); n != nil {
		return doc.FindNodes(n)
	}
	return nil
}

// pixelSize 只看面板内第一个 <p>：其首个 <b> 的引导文本提到 pixel size/resolution 时，
// 取段落中 <b> 以外的文本。
func pixelSize(panel *goquery.Selection) *string {
	p := panel.Find("p").First()
	if p.Length() == 0 {
		return nil
	}
	b := p.Find("b").First()
	if b.Length() == 0 {
		return nil
	}
	lead := strings.ToLower(strippedText(b.Get(0), ""))
	if !strings.Contains(lead, "pixel size") && !strings.Contains(lead, "resolution") {
		return nil
	}

	var parts []string
	walkText(p.Get(0), b.Get(0), func(s string) { parts = append(parts, s) })
	return matched(normSpace(strings.Join(parts, " ")))
}

// panelTables 按文档顺序处理面板内全部 table.eecat，并把结果分别追加到 bands / classifications。
func panelTables(panel *goquery.Selection) ([]domain.BandRecord, []domain.ClassificationRecord) {
	bands := []domain.BandRecord{}
	classes := []domain.ClassificationRecord{}

	panel.Find("table.eecat").Each(func(_ int, tbl *goquery.Selection) {
		trs := tbl.Find("tr")
		if trs.Length() == 0 {
			return
		}

		var headers []string
		trs.First().Find("th").Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, strippedText(th.Get(0), ""))
		})

		rows := make([][]string, 0, trs.Length()-1)
		trs.Slice(1, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
			cells := make([]string, 0, 5)
			tr.Find("td").Each(func(_ int, td *goquery.Selection) {
				cells = append(cells, strippedText(td.Get(0), " "))
			})
			rows = append(rows, cells)
		})

		res := ClassifyTable(headers, rows)
		switch res.Kind {
		case TableBands:
			bands = append(bands, res.Bands...)
		case TableClassification:
			classes = append(classes, res.Classifications...)
		case TableUnrecognized:
			// 无法识别的表整张丢弃。
		}
	})
	return bands, classes
}

// strippedText 收集 n 下所有文本片段，逐段去空白、丢弃空段，再以 sep 拼接。
func strippedText(n *html.Node, sep string) string {
	var parts []string
	walkText(n, nil, func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	})
	return strings.Join(parts, sep)
}

// walkText 按文档顺序回调 n 子树内的文本节点；skip 子树被整体跳过。
func walkText(n, skip *html.Node, fn func(string)) {
	if n == nil || n == skip {
		return
	}
	if n.Type == html.TextNode {
		fn(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, skip, fn)
	}
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
