package extract

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/John-Robertt/geeharvest/internal/domain"
)

// TableKind 是表格的语义分类结果。
type TableKind int

const (
	// TableUnrecognized：表头形态无法识别，整张表丢弃（宁可漏，也不错标）。
	TableUnrecognized TableKind = iota
	TableClassification
	TableBands
)

func (k TableKind) String() string {
	switch k {
	case TableClassification:
		return "classification"
	case TableBands:
		return "bands"
	default:
		return "unrecognized"
	}
}

// TableResult 是一张表的分类输出。Bands 与 Classifications 至多一个非空。
type TableResult struct {
	Kind            TableKind
	Shape           domain.BandShape // 仅 Kind==TableBands 时有意义
	Bands           []domain.BandRecord
	Classifications []domain.ClassificationRecord
	// SkippedRows 是列数与表头不一致而被跳过的数据行数。
	SkippedRows int
}

var cellReplacer = strings.NewReplacer("\u200b", "", "*", "")

// NormalizeHeader 把表头文本规范为“去空白 + Unicode 小写”。
func NormalizeHeader(s string) string {
	// cases.Caser 有状态，不能跨 goroutine 共享；每次新建。
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// NormalizeCell 去掉零宽空格与星号标记，并去除首尾空白。
func NormalizeCell(s string) string {
	return strings.TrimSpace(cellReplacer.Replace(strings.TrimSpace(s)))
}

// ClassifyTable 仅依据表头（列名集合 + 列数）判断表格类型，并把数据行映射为记录。
//
// 判定顺序（先命中者胜出）：
//  1. 恰好 3 列且包含 value/color/description => 分类表
//  2. 列数 ∈ {2,4,5} 且包含 name/description   => 波段表（按列数选字段映射）
//
// 数据行列数与表头不一致时跳过该行，不影响整张表。
func ClassifyTable(headers []string, rows [][]string) TableResult {
	hs := make([]string, len(headers))
	set := make(map[string]struct{}, len(headers))
	for i, h := range headers {
		hs[i] = NormalizeHeader(h)
		set[hs[i]] = struct{}{}
	}
	has := func(names ...string) bool {
		for _, n := range names {
			if _, ok := set[n]; !ok {
				return false
			}
		}
		return true
	}

	if len(hs) == 3 && has("value", "color", "description") {
		return classificationTable(rows)
	}
	if shape, ok := bandShapeForArity(len(hs)); ok && has("name", "description") {
		return bandTable(shape, rows)
	}
	return TableResult{Kind: TableUnrecognized}
}

// bandShapeForArity 把列数映射到波段形态；不在 {2,4,5} 内返回 false。
func bandShapeForArity(n int) (domain.BandShape, bool) {
	switch n {
	case 2:
		return domain.BandShapeBasic, true
	case 4:
		return domain.BandShapeSpectral, true
	case 5:
		return domain.BandShapeScaled, true
	default:
		return 0, false
	}
}

func classificationTable(rows [][]string) TableResult {
	out := TableResult{Kind: TableClassification, Classifications: []domain.ClassificationRecord{}}
	for _, row := range rows {
		if len(row) != 3 {
			out.SkippedRows++
			continue
		}
		out.Classifications = append(out.Classifications, domain.ClassificationRecord{
			Value:       NormalizeCell(row[0]),
			Color:       NormalizeCell(row[1]),
			Description: NormalizeCell(row[2]),
		})
	}
	return out
}

func bandTable(shape domain.BandShape, rows [][]string) TableResult {
	out := TableResult{Kind: TableBands, Shape: shape, Bands: []domain.BandRecord{}}
	arity := shape.Arity()
	for _, row := range rows {
		if len(row) != arity {
			out.SkippedRows++
			continue
		}
		c := make([]string, len(row))
		for i := range row {
			c[i] = NormalizeCell(row[i])
		}

		b := domain.BandRecord{Shape: shape, Name: c[0], Description: c[arity-1]}
		switch shape {
		case domain.BandShapeBasic:
		case domain.BandShapeSpectral:
			b.PixelSize, b.Wavelength = c[1], c[2]
		case domain.BandShapeScaled:
			b.Units, b.Min, b.Max = c[1], c[2], c[3]
		}
		out.Bands = append(out.Bands, b)
	}
	return out
}
