package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/RecoveryAshes/PageCapture/internal/core"
	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile  string
	headersFile string
	verbose     bool
	logLevel    string
	quiet       bool

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 抓取参数
	targetURL           string
	urlFile             string
	depth               int
	maxPages            int
	maxFileSize         int64
	restrictToDomain    bool
	downloadFilter      string
	retryCount          int
	timeoutMs           int
	resourceTimeoutMs   int
	removeHostOnTimeout bool
	workers             int
	throwOnFailure      bool
	scanStylesheets     bool
	respectRobots       bool
	selectedURLs        []string
	render              bool
	headless            bool
	rateLimit           float64
	outputDir           string

	// 批量处理参数
	batchDelay      int
	continueOnError bool
)

// appConfig 由 PersistentPreRunE 加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "pagecapture",
	Short: "网页离线保存工具",
	Long: `PageCapture - 把网页及其引用的资源保存为可离线浏览的副本

功能:
  • 递归抓取子页面和框架, 可限制深度、页面数和域名
  • 下载图片、样式表、脚本、字体和链接到的文档
  • 改写HTML和CSS中的链接为本地相对路径
  • 可选的浏览器渲染 (需要执行脚本的页面)
  • 批量URL处理
  • 自定义HTTP请求头和Cookie

示例:
  # 只保存单个页面
  pagecapture -u https://example.com

  # 抓取两层子页面, 限制在同一域名
  pagecapture -u https://example.com -d 2 --restrict-domain

  # 携带登录Cookie
  pagecapture -u https://example.com -H "Cookie: sessionid=abc"

  # 验证头部配置文件
  pagecapture --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := config.LogConfig()
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose {
			logConfig.Level = "debug"
		}
		if quiet {
			logConfig.Quiet = true
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: runCapture,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		utils.CloseLogger()
	},
}

func runCapture(cmd *cobra.Command, args []string) error {
	if headersFile == "" {
		headersFile = appConfig.Fetch.HeadersFile
	}
	headerManager, err := core.NewHeaderManager(headersFile, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}

	if validateConfig {
		return runValidateConfig(headerManager)
	}

	if targetURL == "" && urlFile == "" {
		return cmd.Help()
	}

	if err := ValidateFlags(cmd); err != nil {
		return err
	}
	if err := appConfig.MergeCLIFlags(collectCLIFlags(cmd)); err != nil {
		return fmt.Errorf("参数无效: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	progress := utils.NewConsoleProgress(nil, "抓取中")

	// Ctrl+C 请求协作取消, 再次按下立即退出
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		utils.Warnf("收到中断信号: %v, 正在停止抓取...", sig)
		progress.Cancel()
		cancel()
		if _, ok := <-sigChan; ok {
			os.Exit(130)
		}
	}()

	capturer := core.NewCapturer(appConfig, headerManager)

	if urlFile != "" {
		batch := core.NewBatchCapturer(capturer, batchDelay, continueOnError)
		_, err := batch.CaptureFile(ctx, urlFile, func(string) models.ProgressSink {
			return progress
		})
		progress.Finish()
		if err != nil {
			return fmt.Errorf("批量抓取失败: %w", err)
		}
		utils.Info("✨ 批量抓取任务完成!")
		return nil
	}

	task, err := capturer.Capture(ctx, targetURL, progress)
	progress.Finish()
	if err != nil {
		return fmt.Errorf("抓取失败: %w", err)
	}

	printStats(task)
	utils.Info("✨ 抓取任务完成!")
	return nil
}

func runValidateConfig(headerManager *core.HeaderManager) error {
	utils.Info("🔍 验证HTTP头部配置...")
	if err := headerManager.LoadConfig(); err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := headerManager.ValidateAll(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	names := make([]string, 0, len(safeHeaders))
	for name := range safeHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for _, name := range names {
		utils.Infof("  %s: %s", name, safeHeaders[name])
	}
	return nil
}

func printStats(task *models.CaptureTask) {
	stats := task.Stats
	fmt.Println("\n==================================================")
	fmt.Println("📊 抓取统计")
	fmt.Println("==================================================")
	fmt.Printf("📄 根页面: %s\n", task.RootFile)
	fmt.Printf("✅ 页面数: %d\n", stats.Pages)
	fmt.Printf("✅ 资源数: %d\n", stats.Resources)
	fmt.Printf("❌ 失败资源: %d\n", stats.FailedResources)
	fmt.Printf("⏭️  跳过URL: %d\n", stats.SkippedURLs)
	if stats.TimedOutHosts > 0 {
		fmt.Printf("⏰ 超时主机: %d\n", stats.TimedOutHosts)
	}
	fmt.Printf("📦 总大小: %s\n", utils.FormatBytes(stats.TotalSize))
	fmt.Printf("⏱️  总耗时: %.2f秒\n", stats.Duration)
	fmt.Println("==================================================")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("PageCapture %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	def := models.DefaultCapturePolicy()

	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&headersFile, "headers-file", "", "HTTP头部配置文件 (默认 configs/headers.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "不在控制台输出日志")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证头部配置文件正确性")

	// 抓取参数
	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "目标URL (必需,除非使用 --url-file)")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含URL列表的文件路径")
	rootCmd.Flags().IntVarP(&depth, "depth", "d", def.MaxDepth, "子页面深度 (0只保存根页面, -1不限制)")
	rootCmd.Flags().IntVar(&maxPages, "max-pages", def.MaxPages, "最大页面数 (0不限制)")
	rootCmd.Flags().Int64Var(&maxFileSize, "max-file-size", def.MaxFileSize, "单文件大小上限(字节, 0不限制)")
	rootCmd.Flags().BoolVar(&restrictToDomain, "restrict-domain", def.RestrictToDomain, "只抓取根URL所在域名")
	rootCmd.Flags().StringVar(&downloadFilter, "filter", string(def.DownloadFilter), "下载过滤 (pages_only|pages_and_documents|all_files)")
	rootCmd.Flags().IntVar(&retryCount, "retries", def.RetryCount, "页面超时重试次数 (0-10)")
	rootCmd.Flags().IntVar(&timeoutMs, "timeout", def.TimeoutMs, "页面超时(毫秒)")
	rootCmd.Flags().IntVar(&resourceTimeoutMs, "resource-timeout", def.ResourceTimeoutMs, "资源下载超时(毫秒)")
	rootCmd.Flags().BoolVar(&removeHostOnTimeout, "skip-timed-out-hosts", def.RemoveHostOnTimeout, "超时的主机不再访问")
	rootCmd.Flags().IntVarP(&workers, "threads", "t", def.Workers, "资源下载并发数 (1-64)")
	rootCmd.Flags().BoolVar(&throwOnFailure, "fail-fast", def.ThrowOnFailure, "遇到第一个错误即中止")
	rootCmd.Flags().BoolVar(&scanStylesheets, "scan-css", def.ScanStylesheets, "下载样式表中url()引用的资源")
	rootCmd.Flags().BoolVar(&respectRobots, "robots", def.RespectRobots, "子页面遵守robots.txt")
	rootCmd.Flags().StringSliceVar(&selectedURLs, "select", nil, "只抓取指定的子页面 (替代链接发现, 可多次指定)")
	rootCmd.Flags().BoolVar(&render, "render", false, "使用浏览器渲染页面")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().Float64Var(&rateLimit, "rate", 0, "每个主机每秒请求数 (0不限速)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "输出目录 (默认 output)")

	// 批量处理参数
	rootCmd.Flags().IntVar(&batchDelay, "batch-delay", 1, "批量处理URL间延迟(秒)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
