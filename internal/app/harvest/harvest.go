// Package harvest 并发抓取并抽取一批数据集详情页。
//
// 约束：
// - 单个 URL 失败（抓取/解析/panic）只影响自身，不中断批次，也不产出记录
// - 结果只由单个聚合 goroutine 收集，按 URL 字典序返回
// - 不做重试、不做限速；并发上限就是 worker 数
package harvest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/John-Robertt/geeharvest/internal/app"
	"github.com/John-Robertt/geeharvest/internal/domain"
	"github.com/John-Robertt/geeharvest/internal/extract"
	"github.com/John-Robertt/geeharvest/internal/fetch"
)

const (
	DefaultConcurrency = 10
	DefaultTimeout     = 30 * time.Second

	tracerName = "github.com/John-Robertt/geeharvest/internal/app/harvest"
)

// ErrEmptyInput 表示 URL 列表为空（或全部为空白）。这是唯一的批次级错误。
var ErrEmptyInput = errors.New("URL 列表为空")

// ExtractFunc 把页面 body 解析为详情；必须是纯函数。
type ExtractFunc func(pageURL string, body []byte) (domain.DatasetDetail, error)

// Options 控制一次 harvest。
type Options struct {
	// Concurrency <=0 时使用 DefaultConcurrency。
	Concurrency int
	// Timeout 是单个 URL（抓取+解析）的超时；<=0 时使用 DefaultTimeout。
	Timeout time.Duration

	Fetcher fetch.Fetcher
	// Extract 为 nil 时使用 extract.Detail。
	Extract ExtractFunc

	Observer Observer
	// Logger 为 nil 时不输出日志。
	Logger *zerolog.Logger
}

// Outcome 是单个 URL 的处理结果。Err == nil 即成功。
type Outcome struct {
	URL      string
	Detail   domain.DatasetDetail
	Err      *Error
	Duration time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

// Error 是单个 URL 的失败记录，只进入报告，不返回给调用方。
type Error struct {
	URL   string
	Stage string // domain.StageFetch | domain.StageParse
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "harvest error"
	}
	return fmt.Sprintf("%s 失败 url=%s: %v", e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result 是一次 harvest 的输出：成功的详情（按 URL 排序）与报告。
type Result struct {
	Details []domain.DatasetDetail
	Report  domain.HarvestReport
}

// Harvest 是最小契约形式：只返回成功的详情。
func Harvest(ctx context.Context, urls []string, concurrency int, f fetch.Fetcher) ([]domain.DatasetDetail, error) {
	res, err := Run(ctx, urls, Options{Concurrency: concurrency, Fetcher: f})
	if err != nil {
		return nil, err
	}
	return res.Details, nil
}

// Run 去重 urls 后用固定大小的 worker pool 逐个抓取并抽取。
func Run(ctx context.Context, urls []string, opts Options) (Result, error) {
	list := app.UniqueURLs(urls)
	if len(list) == 0 {
		return Result{}, ErrEmptyInput
	}
	if opts.Fetcher == nil {
		return Result{}, errors.New("harvest: Fetcher 不能为空")
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	ex := opts.Extract
	if ex == nil {
		ex = extract.Detail
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}
	if workers > len(list) {
		workers = len(list)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "harvest.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("urls", len(list)), attribute.Int("workers", workers))

	rep := domain.HarvestReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Summary:   domain.ReportSummary{Total: len(list)},
		Failures:  make([]domain.FailureItem, 0, 8),
	}

	obs.OnStart(len(list), workers)
	log.Info().Str("run_id", rep.RunID).Int("urls", len(list)).Int("workers", workers).Msg("开始抓取详情页")

	jobs := make(chan string)
	results := make(chan Outcome, len(list))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				results <- processOne(ctx, u, timeout, opts.Fetcher, ex)
			}
		}()
	}

	go func() {
		for _, u := range list {
			jobs <- u
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	details := make([]domain.DatasetDetail, 0, len(list))
	done := 0
	for o := range results {
		done++
		if o.OK() {
			details = append(details, o.Detail)
			log.Debug().Str("url", o.URL).Dur("dur", o.Duration).Msg("完成")
		} else {
			rep.Failures = append(rep.Failures, failureItem(o.Err))
			log.Warn().Str("url", o.URL).Str("stage", o.Err.Stage).Err(o.Err.Err).Msg("处理失败")
		}
		obs.OnItemDone(done, len(list), o)
	}

	sort.Slice(details, func(i, j int) bool { return details[i].URL < details[j].URL })

	rep.FinishedAt = time.Now().UTC()
	rep.Finalize()

	span.SetAttributes(attribute.Int("succeeded", rep.Summary.Succeeded), attribute.Int("failed", rep.Summary.Failed))
	if rep.Summary.Succeeded == 0 {
		span.SetStatus(codes.Error, "no url succeeded")
	}
	log.Info().
		Str("run_id", rep.RunID).
		Int("succeeded", rep.Summary.Succeeded).
		Int("total", rep.Summary.Total).
		Msgf("%d/%d 个 URL 成功", rep.Summary.Succeeded, rep.Summary.Total)

	obs.OnFinish(rep)
	return Result{Details: details, Report: rep}, nil
}

// processOne 在独立超时内完成 fetch -> extract；任何 panic 都降级为该 URL 的失败。
func processOne(parent context.Context, u string, timeout time.Duration, f fetch.Fetcher, ex ExtractFunc) (o Outcome) {
	started := time.Now()
	o.URL = u

	ctx, span := otel.Tracer(tracerName).Start(parent, "harvest.url",
		trace.WithAttributes(attribute.String("url", u)))
	ctx, cancel := context.WithTimeout(ctx, timeout)

	stage := domain.StageFetch
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic：%v", r)
			if stage == domain.StageParse {
				err = &extract.ParseError{URL: u, Err: err}
			} else {
				err = &fetch.Error{URL: u, Err: err}
			}
			o.Detail = domain.DatasetDetail{}
			o.Err = &Error{URL: u, Stage: stage, Err: err}
		}
		if o.Err != nil {
			span.RecordError(o.Err)
			span.SetStatus(codes.Error, o.Err.Error())
		}
		o.Duration = time.Since(started)
		cancel()
		span.End()
	}()

	body, err := f.Fetch(ctx, u)
	if err == nil {
		// 有些 Fetcher 会在 ctx 过期后仍返回 body；超时一律按失败处理。
		err = ctx.Err()
	}
	if err != nil {
		var fe *fetch.Error
		if !errors.As(err, &fe) {
			err = &fetch.Error{URL: u, Err: err}
		}
		o.Err = &Error{URL: u, Stage: domain.StageFetch, Err: err}
		return o
	}

	stage = domain.StageParse
	d, err := runExtract(ctx, u, body, ex)
	if err != nil {
		var pe *extract.ParseError
		if !errors.As(err, &pe) {
			err = &extract.ParseError{URL: u, Err: err}
		}
		o.Err = &Error{URL: u, Stage: domain.StageParse, Err: err}
		return o
	}

	d.URL = u
	d.Normalize()
	o.Detail = d
	return o
}

func runExtract(ctx context.Context, u string, body []byte, ex ExtractFunc) (domain.DatasetDetail, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "extract.Detail")
	defer span.End()

	d, err := ex(u, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return d, err
}

func failureItem(e *Error) domain.FailureItem {
	it := domain.FailureItem{URL: e.URL, Stage: e.Stage}
	switch e.Stage {
	case domain.StageParse:
		it.ErrorCode = domain.ErrCodeParseFailed
		it.ErrorMsg = humanizeParseError(e.Err)
	default:
		it.ErrorCode = domain.ErrCodeFetchFailed
		it.ErrorMsg = humanizeFetchError(e.Err)
	}
	return it
}
