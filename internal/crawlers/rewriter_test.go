package crawlers

import (
	"os"
	"path/filepath"
	"testing"
)

func mapLookup(m map[string]string) URLLookup {
	return func(abs string) (string, bool) {
		v, ok := m[abs]
		return v, ok
	}
}

func TestRewriteCSS(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"http://example.com/img/bg.png":    "bg.png",
		"http://example.com/css/font.woff": "font_1.woff",
		"http://example.com/css/base.css":  "base.css",
	})

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "双引号",
			input:    `a { background: url("../img/bg.png") }`,
			expected: `a { background: url("bg.png") }`,
		},
		{
			name:     "单引号和空白",
			input:    `a { background: url( '../img/bg.png' ) }`,
			expected: `a { background: url('bg.png') }`,
		},
		{
			name:     "无引号",
			input:    `@font-face { src: url(font.woff) }`,
			expected: `@font-face { src: url(font_1.woff) }`,
		},
		{
			name:     "保留片段",
			input:    `a { background: url(/img/bg.png#icon) }`,
			expected: `a { background: url(bg.png#icon) }`,
		},
		{
			name:     "import语句",
			input:    `@import "base.css";`,
			expected: `@import "base.css";`,
		},
		{
			name:     "未知URL保持原样",
			input:    `a { background: url(http://cdn.example.net/x.png) }`,
			expected: `a { background: url(http://cdn.example.net/x.png) }`,
		},
		{
			name:     "data URL不改写",
			input:    `a { background: url(data:image/png;base64,AAAA) }`,
			expected: `a { background: url(data:image/png;base64,AAAA) }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RewriteCSS(tt.input, "http://example.com/css/site.css", lookup)
			if got != tt.expected {
				t.Errorf("期望 %s, 实际 %s", tt.expected, got)
			}
			// 再次改写结果不变
			if again := RewriteCSS(got, "http://example.com/css/site.css", lookup); again != got {
				t.Errorf("改写不是幂等的: %s -> %s", got, again)
			}
		})
	}
}

func TestExtractCSSURLs(t *testing.T) {
	css := `@import 'reset.css';
body { background: url(../img/bg.png) }
.a { background: url("../img/bg.png") }
.b { background: url(data:image/gif;base64,R0lG) }`

	urls := ExtractCSSURLs(css, "http://example.com/css/site.css")
	if len(urls) != 2 {
		t.Fatalf("期望2个URL, 实际 %d: %+v", len(urls), urls)
	}
	want := map[string]bool{
		"http://example.com/img/bg.png":    true,
		"http://example.com/css/reset.css": true,
	}
	for _, u := range urls {
		if !want[u.Absolute] {
			t.Errorf("意外的URL: %s", u.Absolute)
		}
	}
}

func TestCanonicalExtension(t *testing.T) {
	tests := []struct {
		contentType string
		expected    string
	}{
		{"image/png", ".png"},
		{"image/jpeg; charset=binary", ".jpg"},
		{"TEXT/CSS", ".css"},
		{"application/octet-stream", ""},
		{"text/plain", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := CanonicalExtension(tt.contentType); got != tt.expected {
				t.Errorf("期望 %q, 实际 %q", tt.expected, got)
			}
		})
	}
}

func TestLinkRewriter_ClaimAndFixExtension(t *testing.T) {
	dest := t.TempDir()
	storage := NewFileStorage(dest)
	w := NewLinkRewriter(storage)

	g := NewResourceGraph()
	page, _ := g.Finalize(&DiscoveryState{RequestedURL: "http://example.com/"})
	refDir := filepath.Join(dest, g.DirectoryToken(), ReferencesDir)

	// 目录中已有同名文件
	if err := os.MkdirAll(refDir, 0755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.WriteFile(filepath.Join(refDir, "logo_1.png"), []byte("old"), 0644); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}

	var names []string
	for _, u := range []string{"http://a.com/logo.png", "http://b.com/logo.png", "http://c.com/logo.png"} {
		ref, _ := page.AttachReference(u, u)
		rel, err := w.ClaimFile(ref)
		if err != nil {
			t.Fatalf("占用文件失败: %v", err)
		}
		if filepath.Base(rel) != ref.FileName() {
			t.Errorf("路径与文件名不一致: %s / %s", rel, ref.FileName())
		}
		names = append(names, ref.FileName())
	}

	expected := []string{"logo.png", "logo_2.png", "logo_3.png"}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("第%d个资源期望 %s, 实际 %s", i+1, expected[i], names[i])
		}
	}

	tests := []struct {
		name        string
		url         string
		contentType string
		finalURL    string
		expected    string
	}{
		{name: "无扩展名按类型补全", url: "http://example.com/avatar", contentType: "image/png", expected: "avatar.png"},
		{name: "等价扩展名不改", url: "http://example.com/p.jpeg", contentType: "image/jpeg", expected: "p.jpeg"},
		{name: "通用类型保留原扩展名", url: "http://example.com/data.bin", contentType: "application/octet-stream", expected: "data.bin"},
		{name: "扩展名与类型不符", url: "http://example.com/style.php", contentType: "text/css", expected: "style.css"},
		{name: "通用类型按最终URL补全", url: "http://example.com/dl", contentType: "application/octet-stream", finalURL: "http://example.com/files/report.zip", expected: "dl.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, _ := page.AttachReference(tt.url, tt.url)
			if _, err := w.ClaimFile(ref); err != nil {
				t.Fatalf("占用文件失败: %v", err)
			}
			rel, err := w.FixExtension(ref, tt.contentType, tt.finalURL)
			if err != nil {
				t.Fatalf("修正扩展名失败: %v", err)
			}
			if ref.FileName() != tt.expected {
				t.Errorf("期望 %s, 实际 %s", tt.expected, ref.FileName())
			}
			if !storage.Exists(rel) {
				t.Errorf("文件不存在: %s", rel)
			}
		})
	}
}
