package domain

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBandRecord_MarshalJSON_KeysFollowShape(t *testing.T) {
	cases := []struct {
		name string
		in   BandRecord
		want string
	}{
		{
			name: "basic",
			in:   BandRecord{Shape: BandShapeBasic, Name: "B1", Description: "Red band"},
			want: `{"name":"B1","description":"Red band"}`,
		},
		{
			name: "spectral",
			in:   BandRecord{Shape: BandShapeSpectral, Name: "B2", PixelSize: "30 meters", Wavelength: "0.45-0.51 µm", Description: "Blue"},
			want: `{"name":"B2","pixel_size":"30 meters","wavelength":"0.45-0.51 µm","description":"Blue"}`,
		},
		{
			name: "scaled with empty units",
			in:   BandRecord{Shape: BandShapeScaled, Name: "NDVI", Min: "-2000", Max: "10000", Description: "Vegetation index"},
			want: `{"name":"NDVI","units":"","min":"-2000","max":"10000","description":"Vegetation index"}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, string(got))

			var back BandRecord
			require.NoError(t, json.Unmarshal(got, &back))
			require.Equal(t, tc.in, back)
		})
	}
}

func TestBandRecord_MarshalJSON_UnknownShape(t *testing.T) {
	_, err := json.Marshal(BandRecord{Name: "x"})
	require.Error(t, err)
}

func TestDatasetDetail_JSONShape(t *testing.T) {
	d := DatasetDetail{URL: "https://example.test/ds", EECode: StringPtr("ee.Image('X')")}
	d.Normalize()

	b, err := json.Marshal(d)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.Len(t, m, 8, "字段集合必须固定：%s", b)
	require.Nil(t, m["provider"])
	require.Nil(t, m["pixel_size"])
	require.Equal(t, []any{}, m["bands"])
	require.Equal(t, []any{}, m["classifications"])
	require.Equal(t, "ee.Image('X')", m["ee_code"])
}

func TestDatasetDetail_MarshalKeepsHTMLAndArrays(t *testing.T) {
	html := `<div itemprop="description"><p>a & b</p></div>`
	d := DatasetDetail{
		URL:             "https://example.test/ds",
		DescriptionHTML: &html,
		Bands:           []BandRecord{{Shape: BandShapeBasic, Name: "B1", Description: "<1 µm"}},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode(d))

	s := buf.String()
	require.Contains(t, s, `<p>a & b</p>`)
	require.Contains(t, s, `"description":"<1 µm"`)
	require.Contains(t, s, `"classifications":[]`)
}

func TestStringPtr_EmptyIsNil(t *testing.T) {
	require.Nil(t, StringPtr(""))
	require.Equal(t, "a", *StringPtr("a"))
}
