package core

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/crawlers"
	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
)

// Capturer 单个URL的抓取协调器
// 负责组装获取器、渲染器、资源监控和编排器, 并生成任务报告
type Capturer struct {
	config  *Config
	headers *HeaderManager

	// fetcher 为nil时按配置创建
	fetcher models.Fetcher
}

// NewCapturer 创建抓取器, headers可以为nil
func NewCapturer(config *Config, headers *HeaderManager) *Capturer {
	return &Capturer{
		config:  config,
		headers: headers,
	}
}

// OutputDirFor 返回URL对应的输出目录: <base>/<主机名>
// file URL 使用 local
func (c *Capturer) OutputDirFor(rootURL string) string {
	host := "local"
	if u, err := url.Parse(rootURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return filepath.Join(c.config.Output.BaseDir, host)
}

// buildFetcher 按配置组装HTTP获取器, 启用渲染时返回组合获取器
// 返回的close函数释放浏览器
func (c *Capturer) buildFetcher() (models.Fetcher, func()) {
	if c.fetcher != nil {
		return c.fetcher, func() {}
	}

	var provider models.HeaderProvider
	if c.headers != nil {
		provider = c.headers
	}

	httpFetcher := crawlers.NewCollyFetcher(crawlers.FetcherConfig{
		UserAgent:          c.config.Fetch.UserAgent,
		MaxBodySize:        c.config.Fetch.MaxBodySize,
		InsecureSkipVerify: c.config.Fetch.InsecureSkipVerify,
		Limiter:            crawlers.NewHostLimiter(c.config.Fetch.RequestsPerSecond, c.config.Fetch.Burst),
		HeaderProvider:     provider,
	})
	if !c.config.Render.Enabled {
		return httpFetcher, func() {}
	}

	renderer := crawlers.NewRodRenderer(c.config.RendererConfig(provider))
	closeFn := func() {
		if err := renderer.Close(); err != nil {
			utils.Warnf("关闭浏览器失败: %v", err)
		}
	}
	utils.Infof("🌐 已启用浏览器渲染 (无头=%v)", c.config.Render.Headless)
	return &crawlers.CompositeFetcher{HTTP: httpFetcher, Renderer: renderer}, closeFn
}

// userAgent robots.txt匹配使用的User-Agent
func (c *Capturer) userAgent() string {
	if c.config.Fetch.UserAgent != "" {
		return c.config.Fetch.UserAgent
	}
	if c.headers != nil {
		return c.headers.UserAgent()
	}
	return DefaultUserAgent
}

// Capture 抓取单个URL
// 返回的任务总是非nil(参数无效时除外), 失败信息记录在任务中
func (c *Capturer) Capture(ctx context.Context, rootURL string, progress models.ProgressSink) (*models.CaptureTask, error) {
	outputDir := c.OutputDirFor(rootURL)
	task, err := models.NewCaptureTask(rootURL, outputDir, c.config.Capture)
	if err != nil {
		return nil, fmt.Errorf("创建抓取任务失败: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	fetcher, closeFetcher := c.buildFetcher()
	defer closeFetcher()

	opts := []crawlers.Option{
		crawlers.WithHeaderCache(crawlers.NewLRUHeaderCache(c.config.Fetch.HeaderCacheSize)),
		crawlers.WithResourceMonitor(crawlers.NewResourceMonitor(c.config.ResourceMonitorConfig())),
		crawlers.WithRender(c.config.Render.Enabled),
	}
	if c.config.Capture.RespectRobots {
		opts = append(opts, crawlers.WithRobots(
			crawlers.NewRobotsGuard(fetcher, c.userAgent(), c.config.Capture.Timeout())))
	}
	orchestrator := crawlers.NewOrchestrator(fetcher, opts...)

	utils.Infof("任务ID: %s", task.ID)
	utils.Infof("输出目录: %s", outputDir)
	if c.headers != nil {
		utils.Debugf("HTTP头部: %v", c.headers.GetSafeHeaders())
	}

	task.Start()
	rootFile, captureErr := orchestrator.Capture(ctx, rootURL, outputDir, c.config.Capture, progress)
	task.RootFile = rootFile

	for _, e := range orchestrator.Errors() {
		utils.Warnf("非致命错误: %v", e)
	}

	result := orchestrator.Result()
	if result != nil {
		task.Stats = result.Stats
	}
	task.Finish(captureErr)

	if c.config.Output.Reports && result != nil {
		report := buildReport(task, result)
		if err := utils.NewReporter(outputDir).GenerateReport(report); err != nil {
			utils.Warnf("生成报告失败: %v", err)
		}
	}

	if captureErr != nil {
		return task, captureErr
	}

	utils.Infof("📦 总大小: %s, 总耗时: %.2f秒", utils.FormatBytes(task.Stats.TotalSize), task.Stats.Duration)
	return task, nil
}

// buildReport 由任务和抓取结果生成报告
func buildReport(task *models.CaptureTask, result *crawlers.CaptureResult) *models.CaptureReport {
	report := &models.CaptureReport{
		TaskID:        task.ID,
		RootURL:       task.RootURL,
		Domain:        task.Domain,
		Stats:         task.Stats,
		Pages:         result.Pages,
		Resources:     result.Resources,
		FailedFiles:   result.Failed,
		TimedOutHosts: result.TimedOutHosts,
		OutputDir:     task.OutputDir,
		RootFile:      result.RootFile,
		Policy:        task.Policy,
	}
	if task.StartedAt != nil {
		report.StartTime = *task.StartedAt
	}
	if task.CompletedAt != nil {
		report.EndTime = *task.CompletedAt
	} else {
		report.EndTime = time.Now()
	}
	report.Duration = report.EndTime.Sub(report.StartTime).Seconds()
	return report
}
