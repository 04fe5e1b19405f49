package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderConfig headers.yaml 的结构
type HeaderConfig struct {
	// Headers 自定义头部, viper会把键名转换为小写
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`

	// Cookies 以 "name=value" 形式列出, 合并为一个 Cookie 头部
	// Cookie名称区分大小写, 因此用列表而不是map
	Cookies []string `mapstructure:"cookies" yaml:"cookies"`
}

// CookieHeader 返回合并后的Cookie头部值, 没有Cookie时为空
func (c *HeaderConfig) CookieHeader() string {
	parts := make([]string, 0, len(c.Cookies))
	for _, cookie := range c.Cookies {
		if cookie = strings.TrimSpace(cookie); cookie != "" {
			parts = append(parts, cookie)
		}
	}
	return strings.Join(parts, "; ")
}

// ToHeader 转换为 http.Header, 名称按规范形式存储
// 配置中已有 Cookie 头部时忽略 Cookies 列表
func (c *HeaderConfig) ToHeader() http.Header {
	h := make(http.Header, len(c.Headers)+1)
	for name, value := range c.Headers {
		h.Set(name, value)
	}
	if cookie := c.CookieHeader(); cookie != "" && h.Get("Cookie") == "" {
		h.Set("Cookie", cookie)
	}
	return h
}

// CliHeaders 命令行 -H 参数, 每项格式为 "Name: Value"
type CliHeaders []string

// Parse 解析为 http.Header, 同名头部后者覆盖前者
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: 缺少冒号分隔符,应为 'Name: Value'", i+1)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: 头部名称不能为空", i+1)
		}
		result.Set(name, strings.TrimSpace(value))
	}
	return result, nil
}

// HeaderProvider HTTP头部提供者
// 获取器在每个请求前调用 GetHeaders, 实现必须并发安全
type HeaderProvider interface {
	// GetHeaders 返回按优先级合并后的头部 (默认 < 配置 < 命令行)
	GetHeaders() (http.Header, error)
}

// ValidationError 头部验证错误
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string // 可选
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}

// ConfigError 配置文件错误
type ConfigError struct {
	FilePath string
	Cause    error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
