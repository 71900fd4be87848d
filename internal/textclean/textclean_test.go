package textclean

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/geeharvest/internal/domain"
)

func TestText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"<div itemprop=\"description\">\n<p>Starting in 2009,   the team</p>\n<p>More &amp; more.</p></div>", "Starting in 2009, the team More & more."},
		{"plain   text\n\twith spaces", "plain text with spaces"},
		{"", ""},
		{"<p>  </p>", ""},
		{"<p>Resolution: 30&nbsp;m</p>", "Resolution: 30 m"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Text(c.in), "输入 %q", c.in)
	}
}

func TestClean_ReplacesDescriptionHTML(t *testing.T) {
	html := "<div><p>Crop   inventory</p></div>"
	code := "ee.ImageCollection('AAFC/ACI')"
	in := []domain.DatasetDetail{
		{URL: "https://x/A", EECode: &code, DescriptionHTML: &html},
		{URL: "https://x/B"},
	}

	out := Clean(in)
	require.Len(t, out, 2)
	require.Equal(t, "https://x/A", out[0].URL)
	require.Equal(t, "Crop inventory", *out[0].Description)
	require.Equal(t, code, *out[0].EECode)
	require.Nil(t, out[1].Description)

	b, err := json.Marshal(out[1])
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	_, hasHTML := m["description_html"]
	require.False(t, hasHTML, "clean 之后不应再有 description_html：%s", b)
	require.Equal(t, []any{}, m["bands"])
	require.Equal(t, []any{}, m["classifications"])
}
