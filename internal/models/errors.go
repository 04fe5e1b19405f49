package models

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout 请求超时, 页面抓取只对此错误重试
	ErrTimeout = errors.New("请求超时")
	// ErrCaptureCancelled 抓取被取消, 总是向上传递
	ErrCaptureCancelled = errors.New("抓取已取消")
)

// FetchError 获取失败(网络错误或非2xx状态)
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("获取失败 [%s]: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("获取失败 [%s]: %v", e.URL, e.Err)
}

// Unwrap 支持errors.Is/As
func (e *FetchError) Unwrap() error {
	return e.Err
}

// CaptureError 根页面无法获取时整个抓取失败
type CaptureError struct {
	RootURL string
	Err     error
}

// Error 实现error接口
func (e *CaptureError) Error() string {
	return fmt.Sprintf("抓取失败 [%s]: %v", e.RootURL, e.Err)
}

// Unwrap 支持errors.Is/As
func (e *CaptureError) Unwrap() error {
	return e.Err
}

// IsCancelled 是否为取消错误
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCaptureCancelled)
}
