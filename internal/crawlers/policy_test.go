package crawlers

import (
	"testing"

	"github.com/RecoveryAshes/PageCapture/internal/models"
)

func TestCrawlPolicy_ShouldContinue(t *testing.T) {
	tests := []struct {
		name     string
		maxDepth int
		maxPages int
		pages    int
		depth    int
		expected bool
	}{
		{name: "深度为0时根页面不展开", maxDepth: 0, depth: 0, expected: false},
		{name: "深度1时根页面展开", maxDepth: 1, depth: 0, expected: true},
		{name: "恰好到达深度限制", maxDepth: 2, depth: 2, expected: false},
		{name: "未到达深度限制", maxDepth: 2, depth: 1, expected: true},
		{name: "负数深度不限制", maxDepth: -1, depth: 100, expected: true},
		{name: "页面数已满", maxDepth: -1, maxPages: 2, pages: 2, depth: 0, expected: false},
		{name: "页面数未满", maxDepth: -1, maxPages: 3, pages: 2, depth: 0, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultCapturePolicy()
			cfg.MaxDepth = tt.maxDepth
			cfg.MaxPages = tt.maxPages
			p := NewCrawlPolicy(cfg, "http://example.com/")
			for i := 0; i < tt.pages; i++ {
				p.RegisterPage("http://example.com/p"+string(rune('a'+i)), nil, true)
			}

			if got := p.ShouldContinue(tt.depth); got != tt.expected {
				t.Errorf("期望 %v, 实际 %v", tt.expected, got)
			}
		})
	}
}

func TestCrawlPolicy_ShouldDownloadURL(t *testing.T) {
	cfg := models.DefaultCapturePolicy()
	cfg.RestrictToDomain = true
	p := NewCrawlPolicy(cfg, "https://www.example.co.uk/index.html")
	p.RegisterTimeout("https://slow.example.co.uk/x")

	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{name: "同一可注册域名的子域名", url: "https://cdn.example.co.uk/a.png", expected: true},
		{name: "其他域名", url: "https://other.co.uk/a.png", expected: false},
		{name: "相对URL", url: "/a.png", expected: false},
		{name: "不支持的协议", url: "ftp://example.co.uk/a", expected: false},
		{name: "本地文件不受域名限制", url: "file:///tmp/a.html", expected: true},
		{name: "超时主机", url: "https://slow.example.co.uk/y", expected: false},
	}

	if p.RootDomain() != "example.co.uk" {
		t.Fatalf("期望根域名 example.co.uk, 实际 %s", p.RootDomain())
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldDownloadURL(tt.url); got != tt.expected {
				t.Errorf("%s: 期望 %v, 实际 %v", tt.url, tt.expected, got)
			}
		})
	}
}

func TestCrawlPolicy_ShouldDownloadInfo(t *testing.T) {
	info := func(ct string, length int64) *models.URLContentTypeInfo {
		return models.NewContentTypeInfo(ct, "http://example.com/x", length)
	}

	tests := []struct {
		name        string
		filter      models.DownloadFilter
		maxFileSize int64
		info        *models.URLContentTypeInfo
		expected    bool
	}{
		{name: "nil信息", filter: models.FilterAllFiles, info: nil, expected: false},
		{name: "仅网页-网页", filter: models.FilterPagesOnly, info: info(models.MimeHTML, -1), expected: true},
		{name: "仅网页-PDF", filter: models.FilterPagesOnly, info: info(models.MimePDF, -1), expected: false},
		{name: "网页和文档-PDF", filter: models.FilterPagesAndDocuments, info: info(models.MimePDF, -1), expected: true},
		{name: "网页和文档-图片", filter: models.FilterPagesAndDocuments, info: info("image/png", -1), expected: false},
		{name: "所有文件-图片", filter: models.FilterAllFiles, info: info("image/png", -1), expected: true},
		{name: "超过大小限制", filter: models.FilterAllFiles, maxFileSize: 100, info: info("image/png", 101), expected: false},
		{name: "长度未知不受大小限制", filter: models.FilterAllFiles, maxFileSize: 100, info: info("image/png", -1), expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultCapturePolicy()
			cfg.DownloadFilter = tt.filter
			cfg.MaxFileSize = tt.maxFileSize
			p := NewCrawlPolicy(cfg, "http://example.com/")

			if got := p.ShouldDownloadInfo(tt.info); got != tt.expected {
				t.Errorf("期望 %v, 实际 %v", tt.expected, got)
			}
		})
	}
}

func TestCrawlPolicy_RegisterPage(t *testing.T) {
	p := NewCrawlPolicy(models.DefaultCapturePolicy(), "http://example.com/")

	p.RegisterPage("http://Example.com:80/a.html#top", nil, true)
	p.RegisterPage("http://example.com/a.html", nil, true)
	p.RegisterPage("http://example.com/frame.html", nil, false)

	if p.PageCount() != 1 {
		t.Errorf("重复登记和框架不应计数, 期望1, 实际 %d", p.PageCount())
	}
	if !p.IsDiscovered("http://example.com/a.html#other") {
		t.Errorf("规范化后的URL应视为已发现")
	}
	if !p.IsDiscovered("http://example.com/frame.html") {
		t.Errorf("框架页面应被登记")
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HTTP://Example.COM", "http://example.com/"},
		{"https://example.com:443/a#frag", "https://example.com/a"},
		{"http://example.com:8080/a?q=1", "http://example.com:8080/a?q=1"},
		{"http://[::1]:80/x", "http://[::1]/x"},
		{"file:///tmp/A.html", "file:///tmp/A.html"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CanonicalURL(tt.input); got != tt.expected {
				t.Errorf("期望 %s, 实际 %s", tt.expected, got)
			}
		})
	}
}
