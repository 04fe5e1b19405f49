package models

import (
	"fmt"
	"time"
)

// DownloadFilter 下载类型过滤
type DownloadFilter string

const (
	FilterPagesOnly         DownloadFilter = "pages_only"          // 仅网页
	FilterPagesAndDocuments DownloadFilter = "pages_and_documents" // 网页+文档
	FilterAllFiles          DownloadFilter = "all_files"           // 所有文件
)

// ParseDownloadFilter 解析过滤器名称
func ParseDownloadFilter(s string) (DownloadFilter, error) {
	switch DownloadFilter(s) {
	case FilterPagesOnly, FilterPagesAndDocuments, FilterAllFiles:
		return DownloadFilter(s), nil
	case "":
		return FilterAllFiles, nil
	}
	return "", fmt.Errorf("未知的下载过滤器: %s (可选: pages_only, pages_and_documents, all_files)", s)
}

// CapturePolicy 抓取策略配置
// 只包含配置项, 运行期状态由 crawlers.CrawlPolicy 维护
type CapturePolicy struct {
	MaxDepth            int            `mapstructure:"max_depth" json:"max_depth"`                         // 深度限制, 负数表示不限制
	MaxPages            int            `mapstructure:"max_pages" json:"max_pages"`                         // 页面数限制, 0表示不限制
	MaxFileSize         int64          `mapstructure:"max_file_size" json:"max_file_size"`                 // 单文件大小限制(字节), 0表示不限制
	RestrictToDomain    bool           `mapstructure:"restrict_to_domain" json:"restrict_to_domain"`       // 限制在根域名内
	RootDomain          string         `mapstructure:"root_domain" json:"root_domain,omitempty"`           // 显式指定的可注册域名
	DownloadFilter      DownloadFilter `mapstructure:"download_filter" json:"download_filter"`             // 下载类型过滤
	RetryCount          int            `mapstructure:"retry_count" json:"retry_count"`                     // 页面超时重试次数
	TimeoutMs           int            `mapstructure:"timeout_ms" json:"timeout_ms"`                       // 页面/探测超时(毫秒)
	ResourceTimeoutMs   int            `mapstructure:"resource_timeout_ms" json:"resource_timeout_ms"`     // 资源下载超时(毫秒)
	RemoveHostOnTimeout bool           `mapstructure:"remove_host_on_timeout" json:"remove_host_on_timeout"` // 超时主机不再访问
	Workers             int            `mapstructure:"workers" json:"workers"`                             // 资源下载并发数
	ThrowOnFailure      bool           `mapstructure:"throw_on_failure" json:"throw_on_failure"`           // 首个错误即中止
	ScanStylesheets     bool           `mapstructure:"scan_stylesheets" json:"scan_stylesheets"`           // 解析样式表中的url()
	RespectRobots       bool           `mapstructure:"respect_robots" json:"respect_robots"`               // 子页面遵守robots.txt
	SelectedURLs        []string       `mapstructure:"selected_urls" json:"selected_urls,omitempty"`       // 指定子页面列表(替代链接发现)
}

// DefaultCapturePolicy 返回默认策略
func DefaultCapturePolicy() CapturePolicy {
	return CapturePolicy{
		MaxDepth:            0,
		DownloadFilter:      FilterAllFiles,
		RetryCount:          2,
		TimeoutMs:           30000,
		ResourceTimeoutMs:   30000,
		RemoveHostOnTimeout: true,
		Workers:             2,
		ScanStylesheets:     true,
	}
}

// Validate 验证策略
func (p *CapturePolicy) Validate() error {
	if p.MaxPages < 0 {
		return fmt.Errorf("页面数限制不能为负数")
	}
	if p.MaxFileSize < 0 {
		return fmt.Errorf("文件大小限制不能为负数")
	}
	if p.RetryCount < 0 || p.RetryCount > 10 {
		return fmt.Errorf("重试次数必须在0-10之间")
	}
	if p.TimeoutMs <= 0 {
		return fmt.Errorf("超时时间必须大于0")
	}
	if p.ResourceTimeoutMs < 0 {
		return fmt.Errorf("资源超时时间不能为负数")
	}
	if p.Workers < 1 || p.Workers > 64 {
		return fmt.Errorf("并发数必须在1-64之间")
	}
	if _, err := ParseDownloadFilter(string(p.DownloadFilter)); err != nil {
		return err
	}
	for _, u := range p.SelectedURLs {
		if err := ValidateURL(u); err != nil {
			return fmt.Errorf("指定子页面无效 %s: %w", u, err)
		}
	}
	return nil
}

// DepthLimited 是否启用深度限制
func (p *CapturePolicy) DepthLimited() bool {
	return p.MaxDepth >= 0
}

// Timeout 页面超时
func (p *CapturePolicy) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// ResourceTimeout 资源超时, 未设置时沿用页面超时
func (p *CapturePolicy) ResourceTimeout() time.Duration {
	if p.ResourceTimeoutMs <= 0 {
		return p.Timeout()
	}
	return time.Duration(p.ResourceTimeoutMs) * time.Millisecond
}
