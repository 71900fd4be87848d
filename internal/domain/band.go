package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BandShape 标记波段表的列形态（由表头列数决定）。
type BandShape int

const (
	// BandShapeBasic：name / description（2 列）
	BandShapeBasic BandShape = iota + 1
	// BandShapeSpectral：name / pixel_size / wavelength / description（4 列）
	BandShapeSpectral
	// BandShapeScaled：name / units / min / max / description（5 列）
	BandShapeScaled
)

func (s BandShape) String() string {
	switch s {
	case BandShapeBasic:
		return "basic"
	case BandShapeSpectral:
		return "spectral"
	case BandShapeScaled:
		return "scaled"
	default:
		return fmt.Sprintf("BandShape(%d)", int(s))
	}
}

// Arity 返回该形态对应的列数。
func (s BandShape) Arity() int {
	switch s {
	case BandShapeBasic:
		return 2
	case BandShapeSpectral:
		return 4
	case BandShapeScaled:
		return 5
	default:
		return 0
	}
}

// BandRecord 是波段表中的一行。
//
// Shape 决定哪些字段有意义；JSON 只输出该形态的字段（顺序固定），
// 形态内的字段即使为空串也必须输出。
type BandRecord struct {
	Shape BandShape

	Name        string
	PixelSize   string
	Wavelength  string
	Units       string
	Min         string
	Max         string
	Description string
}

type bandBasicJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type bandSpectralJSON struct {
	Name        string `json:"name"`
	PixelSize   string `json:"pixel_size"`
	Wavelength  string `json:"wavelength"`
	Description string `json:"description"`
}

type bandScaledJSON struct {
	Name        string `json:"name"`
	Units       string `json:"units"`
	Min         string `json:"min"`
	Max         string `json:"max"`
	Description string `json:"description"`
}

func (b BandRecord) MarshalJSON() ([]byte, error) {
	switch b.Shape {
	case BandShapeBasic:
		return marshalNoEscape(bandBasicJSON{Name: b.Name, Description: b.Description})
	case BandShapeSpectral:
		return marshalNoEscape(bandSpectralJSON{Name: b.Name, PixelSize: b.PixelSize, Wavelength: b.Wavelength, Description: b.Description})
	case BandShapeScaled:
		return marshalNoEscape(bandScaledJSON{Name: b.Name, Units: b.Units, Min: b.Min, Max: b.Max, Description: b.Description})
	default:
		return nil, fmt.Errorf("未知的波段形态：%v", b.Shape)
	}
}

// UnmarshalJSON 依据出现的键推断形态（用于读回已落盘的详情文件）。
func (b *BandRecord) UnmarshalJSON(data []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, hasUnits := keys["units"]
	_, hasWavelength := keys["wavelength"]
	_, hasPixelSize := keys["pixel_size"]

	switch {
	case hasUnits:
		var v bandScaledJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*b = BandRecord{Shape: BandShapeScaled, Name: v.Name, Units: v.Units, Min: v.Min, Max: v.Max, Description: v.Description}
	case hasWavelength || hasPixelSize:
		var v bandSpectralJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*b = BandRecord{Shape: BandShapeSpectral, Name: v.Name, PixelSize: v.PixelSize, Wavelength: v.Wavelength, Description: v.Description}
	default:
		var v bandBasicJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*b = BandRecord{Shape: BandShapeBasic, Name: v.Name, Description: v.Description}
	}
	return nil
}

// marshalNoEscape 与 json.Marshal 相同，但不转义 <、>、&。
// 自定义 MarshalJSON 的输出不会被外层 Encoder 反转义，必须在这里就保持原样。
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
