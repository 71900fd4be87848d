package domain

import (
	"sort"
	"time"
)

const (
	StageFetch = "fetch"
	StageParse = "parse"
	// StageInput 只出现在批次级失败（配置/输入文件）合成的条目中。
	StageInput = "input"
)

const (
	ErrCodeFetchFailed   = "fetch_failed"
	ErrCodeParseFailed   = "parse_failed"
	ErrCodeConfigInvalid = "config_invalid"
	ErrCodeInputInvalid  = "input_invalid"
	ErrCodeEmptyInput    = "empty_input"
	ErrCodeWriteFailed   = "write_failed"
)

// HarvestReport 是一次 harvest 的对外稳定摘要（report.json / 非 TTY stdout JSON）。
type HarvestReport struct {
	RunID  string `json:"run_id"`
	Input  string `json:"input"`
	Output string `json:"output"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary  ReportSummary `json:"summary"`
	Failures []FailureItem `json:"failures"`
	// Skipped 是输入中缺少 url 的条目（不参与抓取，也不计入 total）。
	Skipped int `json:"skipped"`
}

type ReportSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type FailureItem struct {
	URL       string `json:"url"`
	Stage     string `json:"stage"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) failures 按 url 字典序稳定排序
// 3) summary.failed 由 failures 计算；succeeded = total - failed
func (r *HarvestReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Failures == nil {
		r.Failures = []FailureItem{}
	}
	sort.SliceStable(r.Failures, func(i, j int) bool {
		return r.Failures[i].URL < r.Failures[j].URL
	})

	r.Summary.Failed = len(r.Failures)
	r.Summary.Succeeded = r.Summary.Total - r.Summary.Failed
	if r.Summary.Succeeded < 0 {
		r.Summary.Succeeded = 0
	}
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r HarvestReport) MarshalJSON() ([]byte, error) {
	type Alias HarvestReport
	return marshalNoEscape(Alias(r))
}
