package domain

import "encoding/json"

// DatasetStub 是目录列表阶段产出的最小记录（url/title/description/tags）。
// 详情阶段只消费 URL；其余字段原样保留，便于追溯。
type DatasetStub struct {
	URL         string   `json:"url"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

// ClassificationRecord 是图例表中的一行：类别值 -> 颜色 + 描述。
type ClassificationRecord struct {
	Value       string `json:"value"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// DatasetDetail 是单个数据集详情页的抽取结果。
//
// 约束：
// - 可选字段缺失时为 nil（JSON 输出 null），而不是空串
// - Bands/Classifications 为空时输出 []，不输出 null
// - 构造完成后不再修改；Harvester 返回后归调用方独占
type DatasetDetail struct {
	URL             string                 `json:"url"`
	EECode          *string                `json:"ee_code"`
	Provider        *string                `json:"provider"`
	DescriptionHTML *string                `json:"description_html"`
	PixelSize       *string                `json:"pixel_size"`
	Bands           []BandRecord           `json:"bands"`
	Classifications []ClassificationRecord `json:"classifications"`
	JSCode          *string                `json:"js_code"`
}

// Normalize 把 nil 切片替换为空切片，保证 JSON 输出结构稳定。
func (d *DatasetDetail) Normalize() {
	if d.Bands == nil {
		d.Bands = []BandRecord{}
	}
	if d.Classifications == nil {
		d.Classifications = []ClassificationRecord{}
	}
}

// MarshalJSON 输出前先 Normalize，保证 bands/classifications 永远是数组。
func (d DatasetDetail) MarshalJSON() ([]byte, error) {
	d.Normalize()
	type Alias DatasetDetail
	return marshalNoEscape(Alias(d))
}

var _ json.Marshaler = DatasetDetail{}

// StringPtr 返回 s 的指针；s 为空时返回 nil（字段缺失）。
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CleanedDetail 是 clean 之后的详情：description_html 被替换为纯文本 description。
type CleanedDetail struct {
	URL             string                 `json:"url"`
	EECode          *string                `json:"ee_code"`
	Provider        *string                `json:"provider"`
	PixelSize       *string                `json:"pixel_size"`
	Bands           []BandRecord           `json:"bands"`
	Classifications []ClassificationRecord `json:"classifications"`
	JSCode          *string                `json:"js_code"`
	Description     *string                `json:"description"`
}
