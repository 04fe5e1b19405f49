package main

import (
	"fmt"

	"github.com/RecoveryAshes/PageCapture/internal/core"
	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/spf13/cobra"
)

// ValidateFlags 验证命令行标志的取值范围
// 只检查用户显式指定的参数, 其余由配置文件决定
func ValidateFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()

	if targetURL != "" && urlFile != "" {
		return fmt.Errorf("--url 和 --url-file 不能同时使用")
	}
	if targetURL != "" {
		if err := models.ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}

	if flags.Changed("depth") && depth < -1 {
		return fmt.Errorf("深度必须大于等于-1,当前值: %d", depth)
	}
	if flags.Changed("max-pages") && maxPages < 0 {
		return fmt.Errorf("最大页面数不能为负数,当前值: %d", maxPages)
	}
	if flags.Changed("max-file-size") && maxFileSize < 0 {
		return fmt.Errorf("文件大小上限不能为负数,当前值: %d", maxFileSize)
	}
	if flags.Changed("filter") {
		if _, err := models.ParseDownloadFilter(downloadFilter); err != nil {
			return err
		}
	}
	if flags.Changed("retries") && (retryCount < 0 || retryCount > 10) {
		return fmt.Errorf("重试次数必须在0-10之间,当前值: %d", retryCount)
	}
	if flags.Changed("timeout") && timeoutMs <= 0 {
		return fmt.Errorf("超时时间必须大于0,当前值: %d", timeoutMs)
	}
	if flags.Changed("threads") && (workers < 1 || workers > 64) {
		return fmt.Errorf("并发数必须在1-64之间,当前值: %d", workers)
	}
	if flags.Changed("rate") && rateLimit < 0 {
		return fmt.Errorf("限速不能为负数,当前值: %.2f", rateLimit)
	}
	if flags.Changed("batch-delay") && (batchDelay < 0 || batchDelay > 3600) {
		return fmt.Errorf("批量延迟必须在0-3600秒之间,当前值: %d", batchDelay)
	}
	for _, u := range selectedURLs {
		if err := models.ValidateURL(u); err != nil {
			return fmt.Errorf("无效的指定子页面 %s: %w", u, err)
		}
	}

	return nil
}

// collectCLIFlags 收集用户显式指定的参数
func collectCLIFlags(cmd *cobra.Command) core.CLIFlags {
	flags := cmd.Flags()
	var f core.CLIFlags

	if flags.Changed("depth") {
		f.MaxDepth = &depth
	}
	if flags.Changed("max-pages") {
		f.MaxPages = &maxPages
	}
	if flags.Changed("max-file-size") {
		f.MaxFileSize = &maxFileSize
	}
	if flags.Changed("restrict-domain") {
		f.RestrictToDomain = &restrictToDomain
	}
	if flags.Changed("filter") {
		f.DownloadFilter = &downloadFilter
	}
	if flags.Changed("retries") {
		f.RetryCount = &retryCount
	}
	if flags.Changed("timeout") {
		f.TimeoutMs = &timeoutMs
	}
	if flags.Changed("resource-timeout") {
		f.ResourceTimeoutMs = &resourceTimeoutMs
	}
	if flags.Changed("skip-timed-out-hosts") {
		f.RemoveHostOnTimeout = &removeHostOnTimeout
	}
	if flags.Changed("threads") {
		f.Workers = &workers
	}
	if flags.Changed("fail-fast") {
		f.ThrowOnFailure = &throwOnFailure
	}
	if flags.Changed("scan-css") {
		f.ScanStylesheets = &scanStylesheets
	}
	if flags.Changed("robots") {
		f.RespectRobots = &respectRobots
	}
	if flags.Changed("render") {
		f.Render = &render
	}
	if flags.Changed("headless") {
		f.Headless = &headless
	}
	if flags.Changed("rate") {
		f.RequestsPerSecond = &rateLimit
	}
	if flags.Changed("output") {
		f.OutputDir = &outputDir
	}
	f.SelectedURLs = selectedURLs

	return f
}
