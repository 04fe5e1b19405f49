package models

import (
	"strings"
)

// 常用MIME类型
const (
	MimeHTML        = "text/html"
	MimeXHTML       = "application/xhtml+xml"
	MimePHP         = "application/x-httpd-php"
	MimePDF         = "application/pdf"
	MimePlainText   = "text/plain"
	MimeCSS         = "text/css"
	MimeOctetStream = "application/octet-stream"
)

// ContentCategory 内容类别
type ContentCategory string

const (
	CategoryWebPage  ContentCategory = "web_page"
	CategoryDocument ContentCategory = "document"
	CategoryOther    ContentCategory = "other"
)

var webPageTypes = map[string]bool{
	MimeHTML:  true,
	MimePHP:   true,
	MimeXHTML: true,
}

var documentTypes = map[string]bool{
	MimePDF:                         true,
	"application/postscript":        true,
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
	"application/vnd.visio":         true,
	"application/rtf":               true,
	"text/rtf":                      true,
	"application/x-mspublisher":     true,
	MimePlainText:                   true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
}

// URLContentTypeInfo URL的内容类型信息
// 创建后不再修改
type URLContentTypeInfo struct {
	ContentType     string `json:"content_type"`               // 小写MIME类型, 不含参数
	ContentEncoding string `json:"content_encoding,omitempty"` // Content-Type中分号后的部分, 如 "charset=utf-8"
	FinalURL        string `json:"final_url"`                  // 重定向后的URL
	ContentLength   int64  `json:"content_length"`             // 未知时为-1
}

// NewContentTypeInfo 从原始Content-Type头构造
func NewContentTypeInfo(rawContentType, finalURL string, contentLength int64) *URLContentTypeInfo {
	ct, enc := SplitContentType(rawContentType)
	return &URLContentTypeInfo{
		ContentType:     ct,
		ContentEncoding: enc,
		FinalURL:        finalURL,
		ContentLength:   contentLength,
	}
}

// SplitContentType 按分号拆分为类型和编码两部分
func SplitContentType(raw string) (contentType, encoding string) {
	parts := strings.SplitN(raw, ";", 2)
	contentType = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) == 2 {
		encoding = strings.TrimSpace(parts[1])
	}
	return contentType, encoding
}

// IsWebPage 是否为网页
func (i *URLContentTypeInfo) IsWebPage() bool {
	return IsWebPageType(i.ContentType)
}

// IsDocument 是否为文档
func (i *URLContentTypeInfo) IsDocument() bool {
	return documentTypes[i.ContentType]
}

// HasKnownLength 是否已知内容长度
func (i *URLContentTypeInfo) HasKnownLength() bool {
	return i.ContentLength >= 0
}

// Category 返回内容类别
func (i *URLContentTypeInfo) Category() ContentCategory {
	switch {
	case i.IsWebPage():
		return CategoryWebPage
	case i.IsDocument():
		return CategoryDocument
	default:
		return CategoryOther
	}
}

// IsWebPageType 判断MIME类型是否为网页
func IsWebPageType(contentType string) bool {
	return webPageTypes[strings.ToLower(contentType)]
}
