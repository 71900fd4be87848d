// Package textclean 把详情中的 HTML 片段转为便于检索的纯文本。
package textclean

import (
	"html"
	"strings"

	"github.com/kennygrant/sanitize"

	"github.com/John-Robertt/geeharvest/internal/domain"
)

// Text 去掉标签、还原实体，并把连续空白折叠为单个空格。
func Text(fragment string) string {
	plain := html.UnescapeString(sanitize.HTML(fragment))
	return strings.Join(strings.Fields(plain), " ")
}

// Clean 把每条详情的 description_html 替换为 description；顺序与条数不变。
func Clean(details []domain.DatasetDetail) []domain.CleanedDetail {
	out := make([]domain.CleanedDetail, 0, len(details))
	for i := range details {
		d := details[i]
		d.Normalize()

		c := domain.CleanedDetail{
			URL:             d.URL,
			EECode:          d.EECode,
			Provider:        d.Provider,
			PixelSize:       d.PixelSize,
			Bands:           d.Bands,
			Classifications: d.Classifications,
			JSCode:          d.JSCode,
		}
		if d.DescriptionHTML != nil {
			t := Text(*d.DescriptionHTML)
			c.Description = &t
		}
		out = append(out, c)
	}
	return out
}
