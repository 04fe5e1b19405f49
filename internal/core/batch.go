package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
)

// BatchCapturer 批量抓取器
type BatchCapturer struct {
	capturer      *Capturer
	batchDelay    time.Duration
	continueOnErr bool
}

// BatchResult 单个URL的抓取结果
type BatchResult struct {
	URL         string
	Success     bool
	Error       error
	Task        *models.CaptureTask
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量抓取摘要
type BatchSummary struct {
	Task          *models.BatchCaptureTask
	TotalURLs     int
	SuccessCount  int
	FailCount     int
	TotalPages    int
	TotalSize     int64
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchCapturer 创建批量抓取器
func NewBatchCapturer(capturer *Capturer, batchDelay int, continueOnErr bool) *BatchCapturer {
	return &BatchCapturer{
		capturer:      capturer,
		batchDelay:    time.Duration(batchDelay) * time.Second,
		continueOnErr: continueOnErr,
	}
}

// CaptureFile 从URL文件读取列表并批量抓取
func (bc *BatchCapturer) CaptureFile(ctx context.Context, urlsFile string, newProgress func(string) models.ProgressSink) (*BatchSummary, error) {
	urls, err := utils.ReadURLsFromFile(urlsFile)
	if err != nil {
		return nil, err
	}
	summary, err := bc.CaptureBatch(ctx, urls, newProgress)
	if summary != nil {
		summary.Task.URLsFile = urlsFile
	}
	return summary, err
}

// CaptureBatch 依次抓取URL列表
// newProgress为每个URL创建进度回调, 可以为nil
// 取消时返回已完成部分的摘要和 ErrCaptureCancelled
func (bc *BatchCapturer) CaptureBatch(ctx context.Context, urls []string, newProgress func(string) models.ProgressSink) (*BatchSummary, error) {
	utils.Infof("🚀 开始批量抓取: %d个URL", len(urls))

	task := models.NewBatchCaptureTask("", bc.capturer.config.Capture, int(bc.batchDelay.Seconds()), bc.continueOnErr)
	task.TotalURLs = len(urls)
	started := time.Now()
	task.StartedAt = &started
	task.Status = models.TaskStatusRunning

	summary := &BatchSummary{
		Task:      task,
		TotalURLs: len(urls),
		Results:   make([]BatchResult, 0, len(urls)),
	}

	var stopErr error
	for i, targetURL := range urls {
		utils.Infof("==================== [%d/%d] ====================", i+1, len(urls))
		utils.Infof("目标URL: %s", utils.RedactURL(targetURL))

		var progress models.ProgressSink
		if newProgress != nil {
			progress = newProgress(targetURL)
		}

		result := bc.captureSingleURL(ctx, targetURL, progress)
		summary.Results = append(summary.Results, result)
		if result.Task != nil {
			task.SubTasks = append(task.SubTasks, result.Task.ID)
		}

		if result.Success {
			summary.SuccessCount++
			summary.TotalPages += result.Task.Stats.Pages
			summary.TotalSize += result.Task.Stats.TotalSize
		} else {
			summary.FailCount++
			utils.Errorf("❌ 抓取失败: %v", result.Error)

			if models.IsCancelled(result.Error) {
				stopErr = result.Error
				break
			}
			if !bc.continueOnErr {
				utils.Warn("批量抓取中止 (--continue-on-error=false)")
				break
			}
		}

		if i < len(urls)-1 && bc.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个URL...", bc.batchDelay.Seconds())
			select {
			case <-ctx.Done():
				stopErr = models.ErrCaptureCancelled
			case <-time.After(bc.batchDelay):
			}
			if stopErr != nil {
				break
			}
		}
	}

	summary.TotalDuration = time.Since(started).Seconds()

	completed := time.Now()
	task.CompletedAt = &completed
	task.SuccessfulURLs = summary.SuccessCount
	task.FailedURLs = summary.FailCount
	task.TotalPages = summary.TotalPages
	task.TotalSize = summary.TotalSize
	switch {
	case stopErr != nil:
		task.Status = models.TaskStatusCancelled
	case summary.FailCount > 0 && summary.SuccessCount == 0:
		task.Status = models.TaskStatusFailed
	default:
		task.Status = models.TaskStatusCompleted
	}

	bc.printSummary(summary)
	return summary, stopErr
}

// captureSingleURL 抓取单个URL
func (bc *BatchCapturer) captureSingleURL(ctx context.Context, targetURL string, progress models.ProgressSink) BatchResult {
	result := BatchResult{
		URL:         targetURL,
		ProcessedAt: time.Now(),
	}
	startTime := time.Now()

	task, err := bc.capturer.Capture(ctx, targetURL, progress)
	result.Task = task
	result.Duration = time.Since(startTime).Seconds()
	if err != nil {
		if models.IsCancelled(err) {
			result.Error = err
		} else {
			result.Error = fmt.Errorf("抓取失败: %w", err)
		}
		return result
	}

	result.Success = true
	return result
}

// printSummary 打印批量抓取摘要
func (bc *BatchCapturer) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量抓取摘要")
	utils.Info("==================================================")
	utils.Infof("总URL数: %d", summary.TotalURLs)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📄 总页面数: %d", summary.TotalPages)
	utils.Infof("📦 总大小: %s", utils.FormatBytes(summary.TotalSize))
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的URL:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", utils.RedactURL(result.URL), result.Error)
			}
		}
	}
}
