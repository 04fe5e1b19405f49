package models

import (
	"encoding/json"
	"time"
)

// CaptureReport 抓取报告
type CaptureReport struct {
	// 任务信息
	TaskID  string `json:"task_id"`
	RootURL string `json:"root_url"`
	Domain  string `json:"domain"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Stats CaptureStats `json:"stats"`

	// 文件列表
	Pages       []SavedFile  `json:"pages"`
	Resources   []SavedFile  `json:"resources"`
	FailedFiles []FailedFile `json:"failed_files"`

	TimedOutHosts []string `json:"timed_out_hosts,omitempty"`

	// 输出路径
	OutputDir string `json:"output_dir"`
	RootFile  string `json:"root_file"`

	// 配置快照
	Policy CapturePolicy `json:"policy"`
}

// ToJSON 序列化为JSON
func (r *CaptureReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *CaptureReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
