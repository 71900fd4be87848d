package fetch

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/John-Robertt/geeharvest/internal/fetch"

// HTTPFetcher 基于 resty 取回页面；网络策略（UA/代理/重试）由传入的 *http.Client 决定。
type HTTPFetcher struct {
	rc *resty.Client
}

// NewHTTPFetcher 包装 c（通常来自 httpx.NewPageClient）。c 为 nil 时使用 http.DefaultClient。
// resty 自身的日志转发到 log。
func NewHTTPFetcher(c *http.Client, log zerolog.Logger) *HTTPFetcher {
	if c == nil {
		c = http.DefaultClient
	}
	rc := resty.NewWithClient(c).
		SetLogger(restyLogger{l: log.With().Str("component", "resty").Logger()}).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetHeader("Accept-Language", "en-US,en;q=0.9")
	return &HTTPFetcher{rc: rc}
}

// restyLogger 把 resty.Logger 适配到 zerolog。resty 的 Errorf 对应单 URL 失败，降级为 debug，
// 失败已由 harvest 以 warn 记录。
type restyLogger struct{ l zerolog.Logger }

func (r restyLogger) Errorf(format string, v ...interface{}) { r.l.Debug().Msgf(format, v...) }
func (r restyLogger) Warnf(format string, v ...interface{}) { r.l.Debug().Msgf(format, v...) }
func (r restyLogger) Debugf(format string, v ...interface{}) { r.l.Debug().Msgf(format, v...) }

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "fetch.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	body, err := f.get(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("body.bytes", len(body)))
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.rc.R().SetContext(ctx).Get(url)
	if err != nil {
		// ctx 错误优先：让上层能用 errors.Is(err, context.DeadlineExceeded) 判断超时。
		if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
			err = errors.Join(cerr, err)
		}
		return nil, &Error{URL: url, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &Error{URL: url, Err: &HTTPStatusError{
			URL:        url,
			StatusCode: resp.StatusCode(),
			Location:   resp.Header().Get("Location"),
		}}
	}
	return resp.Body(), nil
}
