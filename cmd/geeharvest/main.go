package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/John-Robertt/geeharvest/internal/app"
	"github.com/John-Robertt/geeharvest/internal/app/harvest"
	"github.com/John-Robertt/geeharvest/internal/catalog"
	"github.com/John-Robertt/geeharvest/internal/config"
	"github.com/John-Robertt/geeharvest/internal/domain"
	"github.com/John-Robertt/geeharvest/internal/fetch"
	"github.com/John-Robertt/geeharvest/internal/infra/cache"
	"github.com/John-Robertt/geeharvest/internal/infra/httpx"
	"github.com/John-Robertt/geeharvest/internal/infra/jsonio"
	"github.com/John-Robertt/geeharvest/internal/textclean"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := newCLI(os.Stdout, os.Stderr).execute(ctx, os.Args[1:])
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// cli 持有一次进程调用的输出端与退出码；测试中用 buffer 替换 stdout/stderr。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	getwd  func() (string, error)

	// progress 为 nil 时按 TTY 自动判断。
	progress func() (io.Writer, bool)

	code int
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{stdout: stdout, stderr: stderr, getwd: os.Getwd}
}

func (c *cli) execute(ctx context.Context, args []string) int {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(c.stderr, "参数错误：%v\n\n", err)
		_ = root.Usage()
		return 2
	}
	return c.code
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "geeharvest",
		Short:         "抓取 Earth Engine 数据集目录与详情页，输出结构化 JSON。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "配置文件路径（默认读取 ./"+config.FileName+"，可选）")
	root.PersistentFlags().String("log-level", config.DefaultLogLevel, "日志级别：debug|info|warn|error")

	root.AddCommand(c.listCmd(), c.harvestCmd(), c.cleanCmd())
	return root
}

func (c *cli) listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "抓取目录页，写出数据集条目（harvest 的输入）",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			c.code = c.runList(cmd)
		},
	}
	cmd.Flags().StringP("output", "o", "", "条目输出路径（默认使用配置中的 input："+config.DefaultInput+"）")
	cmd.Flags().Duration("timeout", config.DefaultTimeout, "请求超时")
	cmd.Flags().String("proxy", "", "代理 URL（http/https/socks5）")
	return cmd
}

func (c *cli) harvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "并发抓取详情页，抽取 bands/classifications 等字段",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			replay, _ := cmd.Flags().GetBool("replay")
			c.code = c.runHarvest(cmd, replay)
		},
	}
	f := cmd.Flags()
	f.StringP("input", "i", config.DefaultInput, "数据集条目（JSON 数组或 JSON Lines）")
	f.StringP("output", "o", config.DefaultOutput, "详情输出路径")
	f.String("report", "", "harvest report 输出路径（默认不写）")
	f.IntP("concurrency", "c", config.DefaultConcurrency, "并发 worker 数（1..64）")
	f.Duration("timeout", config.DefaultTimeout, "单个 URL 的超时")
	f.String("proxy", "", "代理 URL（http/https/socks5）")
	f.String("archive-dir", "", "归档抓取到的页面的目录")
	f.Bool("replay", false, "从 archive-dir 读取页面，不访问网络")
	return cmd
}

func (c *cli) cleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "把详情中的 description_html 转为纯文本 description",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			c.code = c.runClean(cmd)
		},
	}
	cmd.Flags().StringP("input", "i", "", "详情文件（默认使用配置中的 output："+config.DefaultOutput+"）")
	cmd.Flags().StringP("output", "o", "", "清洗后的输出路径（默认 "+config.DefaultCleanedOutput+"）")
	return cmd
}

// loadConfig 只让显式指定的 flag 覆盖配置文件。
func (c *cli) loadConfig(cmd *cobra.Command) (config.EffectiveConfig, error) {
	cwd, err := c.getwd()
	if err != nil {
		return config.EffectiveConfig{}, fmt.Errorf("读取当前目录失败：%w", err)
	}
	fs := cmd.Flags()
	args := config.CLIArgs{}
	args.ConfigPath, _ = fs.GetString("config")
	// list/clean 的 -i/-o 含义不同，由各自命令解析，不覆盖配置中的路径。
	if cmd.Name() == "harvest" {
		args.Input, args.InputSet = stringFlag(fs, "input")
		args.Output, args.OutputSet = stringFlag(fs, "output")
		args.Report, args.ReportSet = stringFlag(fs, "report")
	}
	args.ProxyURL, args.ProxyURLSet = stringFlag(fs, "proxy")
	args.ArchiveDir, args.ArchiveDirSet = stringFlag(fs, "archive-dir")
	args.LogLevel, args.LogLevelSet = stringFlag(fs, "log-level")
	if changed(fs, "concurrency") {
		args.Concurrency, _ = fs.GetInt("concurrency")
		args.ConcurrencySet = true
	}
	if changed(fs, "timeout") {
		args.Timeout, _ = fs.GetDuration("timeout")
		args.TimeoutSet = true
	}
	return config.LoadEffective(cwd, args)
}

func changed(fs *pflag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	return f != nil && f.Changed
}

func stringFlag(fs *pflag.FlagSet, name string) (string, bool) {
	if !changed(fs, name) {
		return "", false
	}
	v, err := fs.GetString(name)
	if err != nil {
		return "", false
	}
	return v, true
}

func newLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().
		Logger()
}

func (c *cli) runList(cmd *cobra.Command) int {
	log := newLogger(c.stderr, zerolog.InfoLevel)
	eff, err := c.loadConfig(cmd)
	if err != nil {
		log.Error().Str("error_code", config.Code(err)).Err(err).Msg("加载配置失败")
		return 1
	}
	log = newLogger(c.stderr, eff.LogLevel)

	tr, err := httpx.NewTransport(httpx.Options{
		ProxyURL:  eff.ProxyURL,
		Timeout:   eff.Timeout,
		RetryMax:  eff.RetryMax,
		UserAgent: eff.UserAgent,
	})
	if err != nil {
		log.Error().Err(err).Msg("初始化 HTTP transport 失败")
		return 1
	}

	stubs, err := catalog.List(cmd.Context(), catalog.Options{
		CatalogURL: eff.CatalogURL,
		Transport:  tr,
		UserAgent:  eff.UserAgent,
		Timeout:    eff.Timeout,
		Logger:     &log,
	})
	if err != nil {
		log.Error().Str("catalog_url", eff.CatalogURL).Err(err).Msg("抓取目录失败")
		return 1
	}

	out := eff.Input
	if p, ok := stringFlag(cmd.Flags(), "output"); ok {
		out = c.abs(p)
	}
	if err := jsonio.WriteFile(out, stubs); err != nil {
		log.Error().Str("path", out).Err(err).Msg("写出条目失败")
		return 1
	}
	log.Info().Int("datasets", len(stubs)).Str("path", out).Msg("目录条目已写出")
	return 0
}

func (c *cli) runHarvest(cmd *cobra.Command, replay bool) int {
	log := newLogger(c.stderr, zerolog.InfoLevel)
	eff, err := c.loadConfig(cmd)
	if err != nil {
		log.Error().Str("error_code", config.Code(err)).Err(err).Msg("加载配置失败")
		c.emitReport(reportForBatchError("", config.Code(err), err))
		return 1
	}
	log = newLogger(c.stderr, eff.LogLevel)

	stubs, err := jsonio.ReadStubs(eff.Input)
	if err != nil {
		log.Error().Str("input", eff.Input).Err(err).Msg("读取输入失败")
		c.emitReport(reportForBatchError(eff.Input, domain.ErrCodeInputInvalid, err))
		return 1
	}
	urls, skipped := app.StubURLs(stubs)
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Msg("部分条目缺少 url，已跳过")
	}

	fetcher, err := buildFetcher(eff, replay, log)
	if err != nil {
		log.Error().Err(err).Msg("初始化 fetcher 失败")
		c.emitReport(reportForBatchError(eff.Input, domain.ErrCodeConfigInvalid, err))
		return 1
	}

	progressW, interactive := c.pickProgressWriter()
	var obs harvest.Observer
	hlog := log
	if interactive {
		printEffective(progressW, eff, replay)
		obs = newProgressUI(progressW)
		// 进度条与 console 日志共用终端：单条失败改由结束后的表格展示。
		if hlog.GetLevel() < zerolog.ErrorLevel {
			hlog = hlog.Level(zerolog.ErrorLevel)
		}
	}

	res, err := harvest.Run(cmd.Context(), urls, harvest.Options{
		Concurrency: eff.Concurrency,
		Timeout:     eff.Timeout,
		Fetcher:     fetcher,
		Observer:    obs,
		Logger:      &hlog,
	})
	if err != nil {
		code := domain.ErrCodeInputInvalid
		if errors.Is(err, harvest.ErrEmptyInput) {
			code = domain.ErrCodeEmptyInput
		}
		log.Error().Str("input", eff.Input).Err(err).Msg("harvest 未执行")
		c.emitReport(reportForBatchError(eff.Input, code, err))
		return 1
	}

	rep := res.Report
	rep.Input = eff.Input
	rep.Skipped = skipped

	exit := 0
	if len(res.Details) == 0 {
		log.Error().Msg("没有任何 URL 成功，未写出 output")
		exit = 1
	} else if err := jsonio.WriteFile(eff.Output, res.Details); err != nil {
		log.Error().Str("path", eff.Output).Err(err).Msg("写出详情失败")
		exit = 1
	} else {
		rep.Output = eff.Output
		log.Info().Int("datasets", len(res.Details)).Str("path", eff.Output).Msg("详情已写出")
	}

	if eff.Report != "" {
		if err := jsonio.WriteFile(eff.Report, rep); err != nil {
			log.Error().Str("path", eff.Report).Err(err).Msg("写出 report 失败")
			exit = 1
		}
	}

	c.emitReport(rep)
	if interactive {
		emitLocations(progressW, eff, rep)
	}
	return exit
}

func buildFetcher(eff config.EffectiveConfig, replay bool, log zerolog.Logger) (fetch.Fetcher, error) {
	if replay {
		if eff.ArchiveDir == "" {
			return nil, errors.New("--replay 需要配置 archive_dir（或 --archive-dir）")
		}
		return cache.Replay(cache.New(eff.ArchiveDir, true)), nil
	}

	client, err := httpx.NewPageClient(httpx.Options{
		ProxyURL:  eff.ProxyURL,
		Timeout:   eff.Timeout,
		RetryMax:  eff.RetryMax,
		UserAgent: eff.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	var f fetch.Fetcher = fetch.NewHTTPFetcher(client, log)
	if eff.ArchiveDir != "" {
		f = cache.Archiving(f, cache.New(eff.ArchiveDir, false), log)
	}
	return f, nil
}

func (c *cli) runClean(cmd *cobra.Command) int {
	log := newLogger(c.stderr, zerolog.InfoLevel)
	eff, err := c.loadConfig(cmd)
	if err != nil {
		log.Error().Str("error_code", config.Code(err)).Err(err).Msg("加载配置失败")
		return 1
	}
	log = newLogger(c.stderr, eff.LogLevel)

	in, out := eff.Output, eff.CleanedOutput
	if p, ok := stringFlag(cmd.Flags(), "input"); ok {
		in = c.abs(p)
	}
	if p, ok := stringFlag(cmd.Flags(), "output"); ok {
		out = c.abs(p)
	}
	if in == out {
		log.Error().Str("path", in).Msg("clean 的输入与输出不能是同一个文件")
		return 1
	}

	details, err := jsonio.ReadDetails(in)
	if err != nil {
		log.Error().Str("input", in).Err(err).Msg("读取详情失败")
		return 1
	}
	if err := jsonio.WriteFile(out, textclean.Clean(details)); err != nil {
		log.Error().Str("path", out).Err(err).Msg("写出清洗结果失败")
		return 1
	}
	log.Info().Int("datasets", len(details)).Str("path", out).Msg("清洗结果已写出")
	return 0
}

func (c *cli) abs(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	cwd, err := c.getwd()
	if err != nil {
		return filepath.Clean(p)
	}
	return filepath.Join(cwd, p)
}

func (c *cli) emitReport(rep domain.HarvestReport) {
	if isTTY(c.stdout) {
		fmt.Fprintf(c.stdout, "完成：%d/%d 个 URL 成功 failed=%d skipped=%d\n",
			rep.Summary.Succeeded, rep.Summary.Total, rep.Summary.Failed, rep.Skipped,
		)
		if len(rep.Failures) > 0 {
			renderFailures(c.stderr, rep.Failures)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 HarvestReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(c.stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(rep)
	fmt.Fprintf(c.stderr, "完成：%d/%d 个 URL 成功 failed=%d skipped=%d\n",
		rep.Summary.Succeeded, rep.Summary.Total, rep.Summary.Failed, rep.Skipped,
	)
}

// reportForBatchError 为批次级失败合成一份 report，保持 stdout 契约不变。
func reportForBatchError(input, code string, err error) domain.HarvestReport {
	now := time.Now().UTC()
	rep := domain.HarvestReport{
		Input:      input,
		StartedAt:  now,
		FinishedAt: now,
		Failures: []domain.FailureItem{{
			URL:       "",
			Stage:     domain.StageInput,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rep.Finalize()
	return rep
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func (c *cli) pickProgressWriter() (io.Writer, bool) {
	if c.progress != nil {
		return c.progress()
	}
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(c.stderr) {
		return c.stderr, true
	}
	if isTTY(c.stdout) {
		return c.stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, rep domain.HarvestReport) {
	if w == nil {
		return
	}
	if rep.Output != "" {
		fmt.Fprintf(w, "output: %s\n", rep.Output)
	}
	if eff.Report != "" {
		fmt.Fprintf(w, "report: %s\n", eff.Report)
	}
	if eff.ArchiveDir != "" {
		fmt.Fprintf(w, "archive: %s\n", eff.ArchiveDir)
	}
}
