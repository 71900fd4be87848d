package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	// FileName 是默认在 cwd 下查找的配置文件名。
	FileName = "geeharvest.yaml"

	// ErrCodeNotFound 表示显式指定的 --config 文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	DefaultConcurrency = 10
	// MaxConcurrency 是并发上限；超出截断。
	MaxConcurrency = 64
	DefaultTimeout = 30 * time.Second
	MaxRetry       = 5

	DefaultInput         = "gee_datasets.json"
	DefaultOutput        = "gee_datasets_full_details.json"
	DefaultCleanedOutput = "gee_datasets_full_details_cleaned.json"
	DefaultCatalogURL    = "https://developers.google.com/earth-engine/datasets/catalog"
	DefaultLogLevel      = "info"
)

// CLIArgs 保留“是否显式指定”的信息：只有显式指定的 flag 才覆盖配置文件。
type CLIArgs struct {
	// ConfigPath 非空表示 --config 显式指定（此时文件必须存在）。
	ConfigPath string

	Input    string
	InputSet bool

	Output    string
	OutputSet bool

	Report    string
	ReportSet bool

	Concurrency    int
	ConcurrencySet bool

	Timeout    time.Duration
	TimeoutSet bool

	ProxyURL    string
	ProxyURLSet bool

	ArchiveDir    string
	ArchiveDirSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 geeharvest.yaml 的解析结构。未知字段忽略。
type FileConfig struct {
	Input         string        `yaml:"input"`
	Output        string        `yaml:"output"`
	CleanedOutput string        `yaml:"cleaned_output"`
	Report        string        `yaml:"report"`
	Concurrency   int           `yaml:"concurrency"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryMax      int           `yaml:"retry_max"`
	Proxy         ProxyConfig   `yaml:"proxy"`
	UserAgent     string        `yaml:"user_agent"`
	CatalogURL    string        `yaml:"catalog_url"`
	ArchiveDir    string        `yaml:"archive_dir"`
	LogLevel      string        `yaml:"log_level"`
}

type ProxyConfig struct {
	URL string `yaml:"url"`
}

// EffectiveConfig 是合并并规范化后的最终配置；路径均为绝对路径。
type EffectiveConfig struct {
	// ConfigPath 是实际读取的配置文件；未读取任何文件时为空。
	ConfigPath string

	Input         string
	Output        string
	CleanedOutput string
	// Report 为空表示不写 report 文件。
	Report string

	Concurrency int
	Timeout     time.Duration
	RetryMax    int
	ProxyURL    string
	UserAgent   string
	CatalogURL  string
	// ArchiveDir 为空表示不归档页面。
	ArchiveDir string
	LogLevel   zerolog.Level
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func defaults() FileConfig {
	return FileConfig{
		Input:         DefaultInput,
		Output:        DefaultOutput,
		CleanedOutput: DefaultCleanedOutput,
		Concurrency:   DefaultConcurrency,
		Timeout:       DefaultTimeout,
		CatalogURL:    DefaultCatalogURL,
		LogLevel:      DefaultLogLevel,
	}
}

// LoadEffective 发现并读取配置文件，与默认值、CLI 参数合并为最终配置。
//
// 发现规则：
// 1) --config 显式指定：必须存在，否则 config_not_found
// 2) 否则尝试 <cwd>/geeharvest.yaml（可选）
//
// 覆盖优先级：显式 CLI flag > 配置文件 > 内置默认值。
// 相对路径一律以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	explicit := strings.TrimSpace(cli.ConfigPath) != ""
	if explicit {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists && explicit {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	// 零值字段由默认值补齐；显式写 0 的 concurrency/timeout 也视为“未设置”。
	if err := mergo.Merge(&fc, defaults()); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	applyCLI(&fc, cli)

	eff, err := normalize(cwdAbs, fc)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if exists {
		eff.ConfigPath = cfgPath
	}
	return eff, nil
}

func applyCLI(fc *FileConfig, cli CLIArgs) {
	if cli.InputSet {
		fc.Input = cli.Input
	}
	if cli.OutputSet {
		fc.Output = cli.Output
	}
	if cli.ReportSet {
		fc.Report = cli.Report
	}
	if cli.ConcurrencySet {
		fc.Concurrency = cli.Concurrency
	}
	if cli.TimeoutSet {
		fc.Timeout = cli.Timeout
	}
	if cli.ProxyURLSet {
		fc.Proxy.URL = cli.ProxyURL
	}
	if cli.ArchiveDirSet {
		fc.ArchiveDir = cli.ArchiveDir
	}
	if cli.LogLevelSet {
		fc.LogLevel = cli.LogLevel
	}
}

func normalize(cwdAbs string, fc FileConfig) (EffectiveConfig, error) {
	if strings.TrimSpace(fc.Input) == "" {
		return EffectiveConfig{}, errors.New("input 不能为空")
	}
	if strings.TrimSpace(fc.Output) == "" {
		return EffectiveConfig{}, errors.New("output 不能为空")
	}

	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	if fc.Timeout < 0 {
		return EffectiveConfig{}, fmt.Errorf("timeout 不能为负数：%s", fc.Timeout)
	}
	timeout := fc.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	if fc.RetryMax < 0 {
		return EffectiveConfig{}, fmt.Errorf("retry_max 不能为负数：%d", fc.RetryMax)
	}
	retry := fc.RetryMax
	if retry > MaxRetry {
		retry = MaxRetry
	}

	proxyURL := strings.TrimSpace(fc.Proxy.URL)
	if proxyURL != "" {
		if err := validateURL(proxyURL, "http", "https", "socks5"); err != nil {
			return EffectiveConfig{}, fmt.Errorf("proxy.url 无效：%w", err)
		}
	}

	catalogURL := strings.TrimSpace(fc.CatalogURL)
	if err := validateURL(catalogURL, "http", "https"); err != nil {
		return EffectiveConfig{}, fmt.Errorf("catalog_url 无效：%w", err)
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(fc.LogLevel)))
	if err != nil || lvl == zerolog.NoLevel {
		return EffectiveConfig{}, fmt.Errorf("log_level 无效（可选 debug/info/warn/error）：%q", fc.LogLevel)
	}

	return EffectiveConfig{
		Input:         absCleanFrom(cwdAbs, fc.Input),
		Output:        absCleanFrom(cwdAbs, fc.Output),
		CleanedOutput: absCleanFrom(cwdAbs, fc.CleanedOutput),
		Report:        absCleanFrom(cwdAbs, fc.Report),
		Concurrency:   concurrency,
		Timeout:       timeout,
		RetryMax:      retry,
		ProxyURL:      proxyURL,
		UserAgent:     strings.TrimSpace(fc.UserAgent),
		CatalogURL:    catalogURL,
		ArchiveDir:    absCleanFrom(cwdAbs, fc.ArchiveDir),
		LogLevel:      lvl,
	}, nil
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme 必须是 %s：%q", strings.Join(schemes, "/"), raw)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；空串保持为空。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
