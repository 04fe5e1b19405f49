package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/crawlers"
	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Capture  models.CapturePolicy `mapstructure:"capture"`
	Fetch    FetchConfig          `mapstructure:"fetch"`
	Render   RenderConfig         `mapstructure:"render"`
	Resource ResourceConfig       `mapstructure:"resource"`
	Logging  LoggingConfig        `mapstructure:"logging"`
	Output   OutputConfig         `mapstructure:"output"`
}

// FetchConfig HTTP获取配置
type FetchConfig struct {
	UserAgent          string  `mapstructure:"user_agent"`
	MaxBodySize        int     `mapstructure:"max_body_size"` // 字节, 0表示不限制
	InsecureSkipVerify bool    `mapstructure:"insecure_skip_verify"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"` // 每个主机, 0表示不限速
	Burst              int     `mapstructure:"burst"`
	HeaderCacheSize    int     `mapstructure:"header_cache_size"`
	HeadersFile        string  `mapstructure:"headers_file"`
}

// RenderConfig 浏览器渲染配置
type RenderConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Headless bool `mapstructure:"headless"`
	WaitTime int  `mapstructure:"wait_time"` // 秒
}

// ResourceConfig 资源监控配置
type ResourceConfig struct {
	SafetyReserveMemory int64 `mapstructure:"safety_reserve_memory"` // MB
	SafetyThreshold     int64 `mapstructure:"safety_threshold"`      // MB
	CPULoadThreshold    int   `mapstructure:"cpu_load_threshold"`
	MaxWorkersLimit     int   `mapstructure:"max_workers_limit"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Quiet    bool           `mapstructure:"quiet"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	Reports bool   `mapstructure:"reports"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pagecapture"))
		}
	}

	// 环境变量: PAGECAPTURE_CAPTURE_MAX_DEPTH 等
	v.SetEnvPrefix("PAGECAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	def := models.DefaultCapturePolicy()

	// 抓取策略
	v.SetDefault("capture.max_depth", def.MaxDepth)
	v.SetDefault("capture.max_pages", def.MaxPages)
	v.SetDefault("capture.max_file_size", def.MaxFileSize)
	v.SetDefault("capture.restrict_to_domain", def.RestrictToDomain)
	v.SetDefault("capture.root_domain", def.RootDomain)
	v.SetDefault("capture.download_filter", string(def.DownloadFilter))
	v.SetDefault("capture.retry_count", def.RetryCount)
	v.SetDefault("capture.timeout_ms", def.TimeoutMs)
	v.SetDefault("capture.resource_timeout_ms", def.ResourceTimeoutMs)
	v.SetDefault("capture.remove_host_on_timeout", def.RemoveHostOnTimeout)
	v.SetDefault("capture.workers", def.Workers)
	v.SetDefault("capture.throw_on_failure", def.ThrowOnFailure)
	v.SetDefault("capture.scan_stylesheets", def.ScanStylesheets)
	v.SetDefault("capture.respect_robots", def.RespectRobots)

	// HTTP获取
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.max_body_size", 100*1024*1024)
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.header_cache_size", 1024)
	v.SetDefault("fetch.headers_file", "")

	// 浏览器渲染
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.headless", true)
	v.SetDefault("render.wait_time", 3)

	// 资源监控
	v.SetDefault("resource.safety_reserve_memory", 1024)
	v.SetDefault("resource.safety_threshold", 512)
	v.SetDefault("resource.cpu_load_threshold", 80)
	v.SetDefault("resource.max_workers_limit", 16)

	// 日志
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.quiet", false)
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 输出
	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.reports", true)
}

// CLIFlags 命令行参数
// 指针字段为nil表示未指定, 沿用配置文件
type CLIFlags struct {
	MaxDepth            *int
	MaxPages            *int
	MaxFileSize         *int64
	RestrictToDomain    *bool
	DownloadFilter      *string
	RetryCount          *int
	TimeoutMs           *int
	ResourceTimeoutMs   *int
	RemoveHostOnTimeout *bool
	Workers             *int
	ThrowOnFailure      *bool
	ScanStylesheets     *bool
	RespectRobots       *bool
	SelectedURLs        []string
	Render              *bool
	Headless            *bool
	OutputDir           *string
	RequestsPerSecond   *float64
}

// MergeCLIFlags 合并命令行参数到配置, 命令行优先
func (c *Config) MergeCLIFlags(f CLIFlags) error {
	p := &c.Capture
	setInt(&p.MaxDepth, f.MaxDepth)
	setInt(&p.MaxPages, f.MaxPages)
	if f.MaxFileSize != nil {
		p.MaxFileSize = *f.MaxFileSize
	}
	setBool(&p.RestrictToDomain, f.RestrictToDomain)
	if f.DownloadFilter != nil {
		filter, err := models.ParseDownloadFilter(*f.DownloadFilter)
		if err != nil {
			return err
		}
		p.DownloadFilter = filter
	}
	setInt(&p.RetryCount, f.RetryCount)
	setInt(&p.TimeoutMs, f.TimeoutMs)
	setInt(&p.ResourceTimeoutMs, f.ResourceTimeoutMs)
	setBool(&p.RemoveHostOnTimeout, f.RemoveHostOnTimeout)
	setInt(&p.Workers, f.Workers)
	setBool(&p.ThrowOnFailure, f.ThrowOnFailure)
	setBool(&p.ScanStylesheets, f.ScanStylesheets)
	setBool(&p.RespectRobots, f.RespectRobots)
	if len(f.SelectedURLs) > 0 {
		p.SelectedURLs = f.SelectedURLs
	}

	setBool(&c.Render.Enabled, f.Render)
	setBool(&c.Render.Headless, f.Headless)
	if f.OutputDir != nil && *f.OutputDir != "" {
		c.Output.BaseDir = *f.OutputDir
	}
	if f.RequestsPerSecond != nil {
		c.Fetch.RequestsPerSecond = *f.RequestsPerSecond
	}

	return p.Validate()
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// LogConfig 转换为日志配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
		Quiet:      c.Logging.Quiet,
	}
}

// ResourceMonitorConfig 转换为资源监控配置
func (c *Config) ResourceMonitorConfig() crawlers.ResourceMonitorConfig {
	const mb = 1024 * 1024
	return crawlers.ResourceMonitorConfig{
		SafetyReserveMemory: c.Resource.SafetyReserveMemory * mb,
		SafetyThreshold:     c.Resource.SafetyThreshold * mb,
		CPULoadThreshold:    c.Resource.CPULoadThreshold,
		MaxWorkersLimit:     c.Resource.MaxWorkersLimit,
	}
}

// RendererConfig 转换为渲染器配置
func (c *Config) RendererConfig(headers models.HeaderProvider) crawlers.RendererConfig {
	return crawlers.RendererConfig{
		Headless:       c.Render.Headless,
		WaitTime:       time.Duration(c.Render.WaitTime) * time.Second,
		HeaderProvider: headers,
	}
}
