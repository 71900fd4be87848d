package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/John-Robertt/geeharvest/internal/app/harvest"
	"github.com/John-Robertt/geeharvest/internal/config"
	"github.com/John-Robertt/geeharvest/internal/domain"
)

var _ harvest.Observer = (*progressUI)(nil)

// progressUI 在交互终端上渲染 harvest 进度条。
//
// 所有输出写到 w（通常是 stderr），不污染 stdout 的 JSON 输出契约。
type progressUI struct {
	w io.Writer

	mu      sync.Mutex
	pw      progress.Writer
	tracker *progress.Tracker

	total int
	ok    int
	fail  int

	updateFrequency time.Duration
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w, updateFrequency: 100 * time.Millisecond}
}

func (p *progressUI) OnStart(total, workers int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "[%s] 执行: workers=%d urls=%d\n\n", time.Now().Format("15:04:05"), workers, total)

	pw := progress.NewWriter()
	pw.SetOutputWriter(p.w)
	pw.SetAutoStop(true)
	pw.SetTrackerLength(30)
	pw.SetUpdateFrequency(p.updateFrequency)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Value = true
	pw.Style().Visibility.Percentage = true

	p.tracker = &progress.Tracker{Message: "Scraping Datasets", Total: int64(total), Units: progress.UnitsDefault}
	pw.AppendTracker(p.tracker)
	p.pw = pw
	p.total = total

	go pw.Render()
	for i := 0; i < 100 && !pw.IsRenderInProgress(); i++ {
		time.Sleep(time.Millisecond)
	}
}

func (p *progressUI) OnItemDone(done, total int, o harvest.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if o.OK() {
		p.ok++
	} else {
		p.fail++
	}
	if p.tracker != nil {
		p.tracker.Increment(1)
	}
}

func (p *progressUI) OnFinish(rep domain.HarvestReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pw == nil {
		return
	}
	if rep.Summary.Succeeded == 0 && rep.Summary.Total > 0 {
		p.tracker.MarkAsErrored()
	} else {
		p.tracker.MarkAsDone()
	}
	// tracker 结束后 Render 自动退出；等待最后一帧，避免与之后的摘要输出交错。
	for p.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Fprintln(p.w)
}

// renderFailures 以表格列出失败的 URL。
func renderFailures(w io.Writer, failures []domain.FailureItem) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"URL", "Stage", "Error"})
	for _, f := range failures {
		key := f.URL
		if key == "" {
			key = "<batch>"
		}
		t.AppendRow(table.Row{key, f.Stage, f.ErrorCode + ": " + truncate(f.ErrorMsg, 100)})
	}
	t.Render()
}

func printEffective(w io.Writer, eff config.EffectiveConfig, replay bool) {
	fmt.Fprintf(w, "[%s] geeharvest harvest\n", time.Now().Format("15:04:05"))
	fmt.Fprintln(w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(w, "  input: %s\n", eff.Input)
	fmt.Fprintf(w, "  output: %s\n", eff.Output)
	fmt.Fprintf(w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(w, "  timeout: %s\n", eff.Timeout)
	if replay {
		fmt.Fprintf(w, "  source: replay (%s)\n", eff.ArchiveDir)
	} else {
		fmt.Fprintf(w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
		if eff.ArchiveDir != "" {
			fmt.Fprintf(w, "  archive: %s\n", eff.ArchiveDir)
		}
	}
	fmt.Fprintln(w)
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

// truncate 按字符（rune）截断，避免切开多字节字符。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
