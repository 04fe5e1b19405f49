package models

import (
	"encoding/json"
	"net/url"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 待执行
	TaskStatusRunning   TaskStatus = "running"   // 执行中
	TaskStatusCompleted TaskStatus = "completed" // 已完成
	TaskStatusFailed    TaskStatus = "failed"    // 失败
	TaskStatusCancelled TaskStatus = "cancelled" // 已取消
)

// CaptureStats 抓取统计
type CaptureStats struct {
	Pages           int     `json:"pages"`            // 保存的页面数(含框架与根副本)
	Resources       int     `json:"resources"`        // 成功下载的资源数
	FailedResources int     `json:"failed_resources"` // 失败的资源数
	SkippedURLs     int     `json:"skipped_urls"`     // 被策略拒绝的URL数
	TimedOutHosts   int     `json:"timed_out_hosts"`  // 超时主机数
	TotalSize       int64   `json:"total_size"`       // 总大小(字节)
	Duration        float64 `json:"duration"`         // 总耗时(秒)
}

// CaptureTask 抓取任务
type CaptureTask struct {
	// 基本信息
	ID          string     `json:"id"`                     // 任务唯一ID (UUID)
	RootURL     string     `json:"root_url"`               // 根URL
	Domain      string     `json:"domain"`                 // 主机名
	OutputDir   string     `json:"output_dir"`             // 输出目录
	CreatedAt   time.Time  `json:"created_at"`             // 创建时间
	StartedAt   *time.Time `json:"started_at,omitempty"`   // 开始时间
	CompletedAt *time.Time `json:"completed_at,omitempty"` // 完成时间

	// 配置参数
	Policy CapturePolicy `json:"policy"`

	// 执行状态
	Status   TaskStatus `json:"status"`
	RootFile string     `json:"root_file,omitempty"` // 根页面的本地路径

	// 统计信息
	Stats CaptureStats `json:"stats"`

	// 错误信息
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewCaptureTask 创建新任务
func NewCaptureTask(rootURL, outputDir string, policy CapturePolicy) (*CaptureTask, error) {
	if err := ValidateURL(rootURL); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	parsed, _ := url.Parse(rootURL)

	return &CaptureTask{
		ID:        generateID(),
		RootURL:   rootURL,
		Domain:    parsed.Hostname(),
		OutputDir: outputDir,
		CreatedAt: time.Now(),
		Policy:    policy,
		Status:    TaskStatusPending,
	}, nil
}

// Start 标记开始
func (t *CaptureTask) Start() {
	now := time.Now()
	t.StartedAt = &now
	t.Status = TaskStatusRunning
}

// Finish 标记结束, err为nil表示成功
func (t *CaptureTask) Finish(err error) {
	now := time.Now()
	t.CompletedAt = &now
	if t.StartedAt != nil {
		t.Stats.Duration = now.Sub(*t.StartedAt).Seconds()
	}
	switch {
	case err == nil:
		t.Status = TaskStatusCompleted
	case IsCancelled(err):
		t.Status = TaskStatusCancelled
		t.ErrorMessage = err.Error()
	default:
		t.Status = TaskStatusFailed
		t.ErrorMessage = err.Error()
	}
}

// ToJSON 序列化为JSON
func (t *CaptureTask) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// FromJSON 从JSON反序列化
func (t *CaptureTask) FromJSON(data []byte) error {
	return json.Unmarshal(data, t)
}

// BatchCaptureTask 批量抓取任务
type BatchCaptureTask struct {
	// 基本信息
	ID          string     `json:"id"`
	URLsFile    string     `json:"urls_file"` // URL列表文件路径
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// 配置
	Policy          CapturePolicy `json:"policy"`
	BatchDelay      int           `json:"batch_delay"`       // URL之间延迟(秒)
	ContinueOnError bool          `json:"continue_on_error"` // 遇到错误继续

	// 状态
	Status TaskStatus `json:"status"`

	// 统计
	TotalURLs      int   `json:"total_urls"`
	SuccessfulURLs int   `json:"successful_urls"`
	FailedURLs     int   `json:"failed_urls"`
	TotalPages     int   `json:"total_pages"`
	TotalSize      int64 `json:"total_size"`

	// 子任务
	SubTasks []string `json:"sub_tasks"` // 子任务ID列表
}

// NewBatchCaptureTask 创建批量任务
func NewBatchCaptureTask(urlsFile string, policy CapturePolicy, delay int, continueOnError bool) *BatchCaptureTask {
	return &BatchCaptureTask{
		ID:              generateID(),
		URLsFile:        urlsFile,
		CreatedAt:       time.Now(),
		Policy:          policy,
		BatchDelay:      delay,
		ContinueOnError: continueOnError,
		Status:          TaskStatusPending,
	}
}
