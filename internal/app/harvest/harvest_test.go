package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/John-Robertt/geeharvest/internal/domain"
	"github.com/John-Robertt/geeharvest/internal/extract"
	"github.com/John-Robertt/geeharvest/internal/fetch"
)

const bandsPage = `<html><body>
<code class="lang-js">ee.Image("X")</code>
<section><h3 id="bands">Bands</h3>
<table class="eecat"><tr><th>Name</th><th>Description</th></tr><tr><td>B1</td><td>Red band</td></tr></table>
<table class="eecat"><tr><th>Value</th><th>Color</th><th>Description</th></tr><tr><td>1</td><td>#ff0000</td><td>Water</td></tr></table>
</section></body></html>`

// pageFetcher 返回固定页面；hang 中的 URL 一直阻塞到 ctx 结束。
type pageFetcher struct {
	pages map[string]string
	hang  map[string]bool
	calls int32
}

func (f *pageFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.hang[url] {
		<-ctx.Done()
		return nil, &fetch.Error{URL: url, Err: ctx.Err()}
	}
	if p, ok := f.pages[url]; ok {
		return []byte(p), nil
	}
	return nil, &fetch.Error{URL: url, Err: &fetch.HTTPStatusError{URL: url, StatusCode: 404}}
}

type recordObserver struct {
	mu sync.Mutex

	startTotal, startWorkers int
	starts, finishes         int
	dones                    []int
	outcomes                 []Outcome
	report                   domain.HarvestReport
}

func (o *recordObserver) OnStart(total, workers int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	o.startTotal, o.startWorkers = total, workers
}

func (o *recordObserver) OnItemDone(done, total int, out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dones = append(o.dones, done)
	o.outcomes = append(o.outcomes, out)
}

func (o *recordObserver) OnFinish(rep domain.HarvestReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finishes++
	o.report = rep
}

func (o *recordObserver) outcome(url string) (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, x := range o.outcomes {
		if x.URL == url {
			return x, true
		}
	}
	return Outcome{}, false
}

func TestRun_OneTimeoutYieldsTwoSortedRecords(t *testing.T) {
	f := &pageFetcher{
		pages: map[string]string{
			"https://x/catalog/C": bandsPage,
			"https://x/catalog/A": bandsPage,
		},
		hang: map[string]bool{"https://x/catalog/B": true},
	}
	obs := &recordObserver{}

	res, err := Run(context.Background(),
		[]string{"https://x/catalog/C", "https://x/catalog/B", "https://x/catalog/A"},
		Options{Concurrency: 3, Timeout: 100 * time.Millisecond, Fetcher: f, Observer: obs},
	)
	require.NoError(t, err)
	require.Len(t, res.Details, 2)
	require.Equal(t, "https://x/catalog/A", res.Details[0].URL)
	require.Equal(t, "https://x/catalog/C", res.Details[1].URL)

	require.Equal(t, 3, res.Report.Summary.Total)
	require.Equal(t, 2, res.Report.Summary.Succeeded)
	require.Equal(t, 1, res.Report.Summary.Failed)
	require.Len(t, res.Report.Failures, 1)
	require.Equal(t, "https://x/catalog/B", res.Report.Failures[0].URL)
	require.Equal(t, domain.StageFetch, res.Report.Failures[0].Stage)
	require.Equal(t, domain.ErrCodeFetchFailed, res.Report.Failures[0].ErrorCode)
	require.Contains(t, res.Report.Failures[0].ErrorMsg, "超时")

	o, ok := obs.outcome("https://x/catalog/B")
	require.True(t, ok)
	require.False(t, o.OK())
	require.True(t, errors.Is(o.Err, context.DeadlineExceeded), "期望 DeadlineExceeded，实际 %v", o.Err)
}

func TestRun_ExtractsBandsAndClassifications(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{"https://x/catalog/A": bandsPage}}

	out, err := Harvest(context.Background(), []string{"https://x/catalog/A"}, 0, f)
	require.NoError(t, err)
	require.Len(t, out, 1)
	d := out[0]
	require.Equal(t, `ee.Image("X")`, *d.EECode)
	require.Equal(t, []domain.BandRecord{{Shape: domain.BandShapeBasic, Name: "B1", Description: "Red band"}}, d.Bands)
	require.Equal(t, []domain.ClassificationRecord{{Value: "1", Color: "#ff0000", Description: "Water"}}, d.Classifications)
}

func TestRun_EmptyInput(t *testing.T) {
	f := &pageFetcher{}
	for _, urls := range [][]string{nil, {}, {" ", "\t"}} {
		_, err := Run(context.Background(), urls, Options{Fetcher: f})
		require.ErrorIs(t, err, ErrEmptyInput)
	}
	require.Zero(t, atomic.LoadInt32(&f.calls), "空输入不应发起任何抓取")

	_, err := Harvest(context.Background(), nil, 4, f)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestRun_NilFetcher(t *testing.T) {
	_, err := Run(context.Background(), []string{"https://x/a"}, Options{})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrEmptyInput))
}

func TestRun_ParseFailuresAndPanicsAreDropped(t *testing.T) {
	urls := []string{"https://x/ok", "https://x/bad", "https://x/panic", "https://x/fetchpanic"}
	f := fetch.Func(func(_ context.Context, url string) ([]byte, error) {
		if url == "https://x/fetchpanic" {
			panic("boom in fetch")
		}
		return []byte(url), nil
	})
	ex := func(pageURL string, body []byte) (domain.DatasetDetail, error) {
		switch pageURL {
		case "https://x/bad":
			return domain.DatasetDetail{}, errors.New("layout drift")
		case "https://x/panic":
			panic("boom in extract")
		}
		return domain.DatasetDetail{URL: pageURL}, nil
	}
	obs := &recordObserver{}

	res, err := Run(context.Background(), urls, Options{Concurrency: 2, Fetcher: f, Extract: ex, Observer: obs})
	require.NoError(t, err)
	require.Len(t, res.Details, 1)
	require.Equal(t, "https://x/ok", res.Details[0].URL)
	require.NotNil(t, res.Details[0].Bands)
	require.NotNil(t, res.Details[0].Classifications)

	stages := map[string]string{}
	for _, fi := range res.Report.Failures {
		stages[fi.URL] = fi.Stage
	}
	require.Equal(t, map[string]string{
		"https://x/bad":        domain.StageParse,
		"https://x/panic":      domain.StageParse,
		"https://x/fetchpanic": domain.StageFetch,
	}, stages)

	o, _ := obs.outcome("https://x/bad")
	var pe *extract.ParseError
	require.ErrorAs(t, o.Err, &pe)

	o, _ = obs.outcome("https://x/fetchpanic")
	var fe *fetch.Error
	require.ErrorAs(t, o.Err, &fe)
}

func TestRun_NoFabricatedURLs(t *testing.T) {
	pages := map[string]string{}
	var urls []string
	for i := 0; i < 15; i++ {
		u := fmt.Sprintf("https://x/catalog/D%02d", i)
		urls = append(urls, u)
		if i%3 != 0 {
			pages[u] = bandsPage
		}
	}
	// 重复输入只处理一次。
	urls = append(urls, urls[1], " "+urls[2]+" ")

	res, err := Run(context.Background(), urls, Options{Concurrency: 4, Fetcher: &pageFetcher{pages: pages}})
	require.NoError(t, err)
	require.Equal(t, 15, res.Report.Summary.Total)
	require.LessOrEqual(t, len(res.Details), len(urls))
	require.Len(t, res.Details, 10)

	seen := map[string]bool{}
	for i, d := range res.Details {
		_, ok := pages[d.URL]
		require.True(t, ok, "出现了输入之外的 URL：%s", d.URL)
		require.False(t, seen[d.URL], "URL 重复：%s", d.URL)
		seen[d.URL] = true
		if i > 0 {
			require.Less(t, res.Details[i-1].URL, d.URL)
		}
	}
}

func TestRun_ConcurrencyIsBounded(t *testing.T) {
	var inflight, peak int32
	f := fetch.Func(func(ctx context.Context, url string) ([]byte, error) {
		n := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return []byte(bandsPage), nil
	})

	var urls []string
	for i := 0; i < 20; i++ {
		urls = append(urls, fmt.Sprintf("https://x/%d", i))
	}
	obs := &recordObserver{}
	res, err := Run(context.Background(), urls, Options{Concurrency: 3, Fetcher: f, Observer: obs})
	require.NoError(t, err)
	require.Len(t, res.Details, 20)
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	require.Equal(t, 3, obs.startWorkers)
}

func TestRun_ObserverEvents(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{"https://x/a": bandsPage, "https://x/b": bandsPage}}
	obs := &recordObserver{}

	res, err := Run(context.Background(), []string{"https://x/b", "https://x/a", "https://x/missing"}, Options{Fetcher: f, Observer: obs})
	require.NoError(t, err)

	require.Equal(t, 1, obs.starts)
	require.Equal(t, 3, obs.startTotal)
	// workers 不超过 URL 数。
	require.Equal(t, 3, obs.startWorkers)
	require.Equal(t, []int{1, 2, 3}, obs.dones)
	require.Equal(t, 1, obs.finishes)
	require.Equal(t, res.Report.RunID, obs.report.RunID)
	require.NotEmpty(t, res.Report.RunID)

	o, _ := obs.outcome("https://x/missing")
	var hs *fetch.HTTPStatusError
	require.ErrorAs(t, o.Err, &hs)
	require.Equal(t, 404, hs.StatusCode)
	require.True(t, strings.Contains(res.Report.Failures[0].ErrorMsg, "404"))
}

func TestRun_CallerCancellationFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &pageFetcher{hang: map[string]bool{"https://x/a": true, "https://x/b": true}}
	res, err := Run(ctx, []string{"https://x/a", "https://x/b"}, Options{Fetcher: f})
	require.NoError(t, err)
	require.Empty(t, res.Details)
	require.Equal(t, 2, res.Report.Summary.Failed)
	require.Equal(t, 0, res.Report.Summary.Succeeded)
}

func TestRun_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	f := &pageFetcher{pages: map[string]string{"https://x/a": bandsPage}}
	_, err := Run(context.Background(), []string{"https://x/a", "https://x/missing"}, Options{Fetcher: f})
	require.NoError(t, err)

	count := map[string]int{}
	failed := map[string]int{}
	for _, s := range rec.Ended() {
		count[s.Name()]++
		if s.Status().Code == codes.Error {
			failed[s.Name()]++
		}
	}
	require.Equal(t, 1, count["harvest.Run"])
	require.Equal(t, 2, count["harvest.url"])
	require.Equal(t, 1, count["extract.Detail"])
	require.Equal(t, 1, failed["harvest.url"])
}
