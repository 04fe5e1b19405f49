package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/schollz/progressbar/v3"
)

// ReportsDirName 报告子目录
const ReportsDirName = "reports"

// Reporter 报告生成器
// 报告写入 <outputDir>/reports/, 文件名带任务ID, 同一目录可保存多次抓取的报告
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{
		outputDir: outputDir,
	}
}

// ReportPath 返回任务报告的路径
func (r *Reporter) ReportPath(taskID string) string {
	return filepath.Join(r.outputDir, ReportsDirName, "capture_"+taskID+".json")
}

// GenerateReport 保存抓取报告
// 有失败文件时另存一份 failed_<taskID>.json
func (r *Reporter) GenerateReport(report *models.CaptureReport) error {
	if report == nil {
		return fmt.Errorf("报告为空")
	}
	reportsDir := filepath.Join(r.outputDir, ReportsDirName)
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	report.RootURL = RedactURL(report.RootURL)

	if err := r.saveJSONReport(r.ReportPath(report.TaskID), report); err != nil {
		return err
	}

	if len(report.FailedFiles) > 0 {
		failedPath := filepath.Join(reportsDir, "failed_"+report.TaskID+".json")
		if err := r.saveJSONReport(failedPath, report.FailedFiles); err != nil {
			return err
		}
	}

	Infof("✅ 报告已生成: %s", r.ReportPath(report.TaskID))
	return nil
}

// LoadReport 读取之前保存的报告
func (r *Reporter) LoadReport(taskID string) (*models.CaptureReport, error) {
	data, err := os.ReadFile(r.ReportPath(taskID))
	if err != nil {
		return nil, fmt.Errorf("读取报告失败: %w", err)
	}
	report := &models.CaptureReport{}
	if err := report.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析报告失败: %w", err)
	}
	return report, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string, opts ...progressbar.Option) *progressbar.ProgressBar {
	base := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	}
	return progressbar.NewOptions(max, append(base, opts...)...)
}
