package crawlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
)

// extensionTypes 扩展名到MIME类型的静态表, 网络探测失败时使用
var extensionTypes = map[string]string{
	".htm":   "text/html",
	".html":  "text/html",
	".shtml": "text/html",
	".xhtml": "application/xhtml+xml",
	".php":   "application/x-httpd-php",
	".asp":   "text/html",
	".aspx":  "text/html",
	".jsp":   "text/html",
	".cfm":   "text/html",
	".pl":    "text/html",
	".cgi":   "text/html",
	".txt":   "text/plain",
	".css":   "text/css",
	".js":    "application/javascript",
	".json":  "application/json",
	".xml":   "text/xml",
	".rss":   "application/rss+xml",
	".pdf":   "application/pdf",
	".ps":    "application/postscript",
	".eps":   "application/postscript",
	".doc":   "application/msword",
	".dot":   "application/msword",
	".docx":  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":   "application/vnd.ms-excel",
	".xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":   "application/vnd.ms-powerpoint",
	".pps":   "application/vnd.ms-powerpoint",
	".pptx":  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".vsd":   "application/vnd.visio",
	".rtf":   "application/rtf",
	".pub":   "application/x-mspublisher",
	".gif":   "image/gif",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".bmp":   "image/bmp",
	".ico":   "image/x-icon",
	".svg":   "image/svg+xml",
	".webp":  "image/webp",
	".tif":   "image/tiff",
	".tiff":  "image/tiff",
	".swf":   "application/x-shockwave-flash",
	".zip":   "application/zip",
	".gz":    "application/gzip",
	".mp3":   "audio/mpeg",
	".wav":   "audio/wav",
	".mp4":   "video/mp4",
	".avi":   "video/x-msvideo",
	".exe":   models.MimeOctetStream,
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
}

// ContentClassifier 判断URL的内容类型
// 依次使用: .pdf快捷判断、响应头缓存、网络探测(HEAD失败回退GET)、扩展名表
type ContentClassifier struct {
	fetcher models.Fetcher
	cache   models.HeaderCache
}

// NewContentClassifier 创建分类器, cache为nil时不缓存
func NewContentClassifier(fetcher models.Fetcher, cache models.HeaderCache) *ContentClassifier {
	return &ContentClassifier{fetcher: fetcher, cache: cache}
}

// Classify 返回URL的内容类型信息
// URL无法解析或不是绝对URL时返回nil; 网络失败时退回扩展名猜测, 不返回错误
func (c *ContentClassifier) Classify(ctx context.Context, rawURL string, timeout time.Duration) *models.URLContentTypeInfo {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return nil
	}
	ext := strings.ToLower(path.Ext(u.Path))

	if ext == ".pdf" {
		return models.NewContentTypeInfo(models.MimePDF, rawURL, -1)
	}

	key := CanonicalURL(rawURL)
	if c.cache != nil {
		if h, ok := c.cache.Lookup(key); ok {
			return infoFromHeader(h, rawURL)
		}
	}

	scheme := strings.ToLower(u.Scheme)
	if c.fetcher != nil && (scheme == "http" || scheme == "https") {
		if info := c.probe(ctx, rawURL, key, timeout); info != nil {
			return info
		}
	}

	return guessFromExtension(rawURL, scheme, ext)
}

// probe 先HEAD再GET, 成功时写入缓存
func (c *ContentClassifier) probe(ctx context.Context, rawURL, key string, timeout time.Duration) *models.URLContentTypeInfo {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		pctx, cancel := withOptionalTimeout(ctx, timeout)
		result, err := c.fetcher.Fetch(pctx, &models.FetchRequest{URL: rawURL, Method: method})
		cancel()
		if err != nil {
			if errors.Is(err, models.ErrCaptureCancelled) || ctx.Err() != nil {
				return nil
			}
			utils.Debugf("内容类型探测失败 [%s %s]: %v", method, rawURL, err)
			continue
		}
		if result.ContentType == "" {
			continue
		}

		h := make(http.Header)
		h.Set("Content-Type", result.ContentType)
		if cl := result.ContentLength(); cl >= 0 {
			h.Set("Content-Length", result.Headers.Get("Content-Length"))
		}
		if result.FinalURL != "" {
			h.Set("X-Final-Url", result.FinalURL)
		}
		if c.cache != nil {
			c.cache.Store(key, h)
		}
		return infoFromHeader(h, rawURL)
	}
	return nil
}

func infoFromHeader(h http.Header, rawURL string) *models.URLContentTypeInfo {
	final := h.Get("X-Final-Url")
	if final == "" {
		final = rawURL
	}
	length := int64(-1)
	if v := h.Get("Content-Length"); v != "" {
		r := &models.FetchResult{Headers: h}
		length = r.ContentLength()
	}
	return models.NewContentTypeInfo(h.Get("Content-Type"), final, length)
}

// guessFromExtension 按扩展名猜测
// 无扩展名: http(s)视为网页, 其他为二进制; 未知扩展名: 本地文件为二进制, 网络URL视为网页(动态脚本)
func guessFromExtension(rawURL, scheme, ext string) *models.URLContentTypeInfo {
	isHTTP := scheme == "http" || scheme == "https"

	if ext == "" {
		if isHTTP {
			return models.NewContentTypeInfo(models.MimeHTML, rawURL, -1)
		}
		return models.NewContentTypeInfo(models.MimeOctetStream, rawURL, -1)
	}
	if ext == ".dll" {
		if scheme == "file" {
			return models.NewContentTypeInfo(models.MimeOctetStream, rawURL, -1)
		}
		return models.NewContentTypeInfo(models.MimeHTML, rawURL, -1)
	}
	if ct, ok := extensionTypes[ext]; ok {
		return models.NewContentTypeInfo(ct, rawURL, -1)
	}
	if scheme == "file" || !isHTTP {
		return models.NewContentTypeInfo(models.MimeOctetStream, rawURL, -1)
	}
	return models.NewContentTypeInfo(models.MimeHTML, rawURL, -1)
}

// withOptionalTimeout timeout<=0 时不设置deadline
func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
