package models

import (
	"context"
	"io"
	"net/http"
	"os"
)

// FetchRequest 获取请求
type FetchRequest struct {
	URL    string
	Method string // http.MethodHead 或 http.MethodGet
	// Render 为true时允许使用浏览器渲染(仅GET页面)
	Render bool
}

// FetchResult 获取结果
type FetchResult struct {
	Body        []byte
	ContentType string
	FinalURL    string
	StatusCode  int
	Headers     http.Header
}

// ContentLength 返回响应声明的长度, 未知时为-1
func (r *FetchResult) ContentLength() int64 {
	if r.Headers == nil {
		return -1
	}
	return parseContentLength(r.Headers.Get("Content-Length"))
}

// Fetcher HTTP获取接口
// 超时由ctx的deadline决定; 超时返回包装了ErrTimeout的错误,
// 其他失败返回 *FetchError, 取消返回 ErrCaptureCancelled
type Fetcher interface {
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// DomExtractor 从HTML中提取资源和链接
type DomExtractor interface {
	Extract(html []byte, baseURL string) (*Document, error)
}

// HTMLEmitter 把文档按URL映射重写后输出
// urlMap 的键是文档中出现的原始URL值或其绝对URL, 值为本地相对路径
type HTMLEmitter interface {
	Emit(w io.Writer, doc *Document, urlMap map[string]string) error
}

// Storage 文件存储接口
type Storage interface {
	Open(path string, flag int) (io.ReadWriteCloser, error)
	NonConflictingPath(path string) string
}

// HeaderCache 响应头缓存, 键为规范化URL
type HeaderCache interface {
	Lookup(url string) (http.Header, bool)
	Store(url string, header http.Header)
}

// ProgressSink 进度回调
type ProgressSink interface {
	// Update 报告进度, completed/total 为当前份额内的刻度
	Update(completed, total int, message string)
	// CancelRequested 是否已请求取消
	CancelRequested() bool
}

// SilentProgress 不输出任何进度
type SilentProgress struct{}

// Update 实现ProgressSink
func (SilentProgress) Update(int, int, string) {}

// CancelRequested 实现ProgressSink
func (SilentProgress) CancelRequested() bool { return false }

// 常用打开模式
const (
	OpenCreate = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	OpenRead   = os.O_RDONLY
)
