package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHarvestReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := HarvestReport{
		RunID:      "r1",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Summary:    ReportSummary{Total: 5},
		Failures: []FailureItem{
			{URL: "https://b.test/2", Stage: StageParse},
			{URL: "https://a.test/1", Stage: StageFetch},
		},
	}

	r.Finalize()

	require.Equal(t, "https://a.test/1", r.Failures[0].URL, "failures 未按 url 排序")
	require.Equal(t, "https://b.test/2", r.Failures[1].URL, "failures 未按 url 排序")
	require.Equal(t, ReportSummary{Total: 5, Succeeded: 3, Failed: 2}, r.Summary)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	require.True(t, bytes.Contains(b, []byte(`"started_at":"2026-02-09T02:00:00Z"`)), "started_at 不是 UTC RFC3339：%s", b)
}

func TestHarvestReport_Finalize_NilFailuresBecomesEmptyArray(t *testing.T) {
	r := HarvestReport{Summary: ReportSummary{Total: 2}}
	r.Finalize()

	b, err := json.Marshal(r)
	require.NoError(t, err)
	require.Contains(t, string(b), `"failures":[]`)
	require.Equal(t, 2, r.Summary.Succeeded)
}
