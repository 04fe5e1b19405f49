package crawlers

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
)

var (
	// cssURLPattern 匹配 url(x) / url('x') / url("x")
	cssURLPattern = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]*))\s*\)`)
	// cssImportPattern 匹配 @import "x" / @import 'x'
	cssImportPattern = regexp.MustCompile(`(?i)@import\s+(?:"([^"]*)"|'([^']*)')`)
)

// preferredExtensions 常见MIME类型的首选扩展名
var preferredExtensions = map[string]string{
	"text/html":                ".html",
	"application/xhtml+xml":    ".html",
	"text/css":                 ".css",
	"application/javascript":   ".js",
	"application/x-javascript": ".js",
	"text/javascript":          ".js",
	"application/json":         ".json",
	"application/pdf":          ".pdf",
	"image/jpeg":               ".jpg",
	"image/pjpeg":              ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/svg+xml":            ".svg",
	"image/webp":               ".webp",
	"image/bmp":                ".bmp",
	"image/tiff":               ".tif",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
	"font/woff":                ".woff",
	"font/woff2":               ".woff2",
	"font/ttf":                 ".ttf",
	"font/otf":                 ".otf",
	"application/font-woff":    ".woff",
	"audio/mpeg":               ".mp3",
	"video/mp4":                ".mp4",
	"application/zip":          ".zip",
}

// genericTypes 不足以判断扩展名的类型, 保留原扩展名
var genericTypes = map[string]bool{
	models.MimeOctetStream: true,
	models.MimePlainText:   true,
	"binary/octet-stream":  true,
}

// equivalentExtensions 视为相同的扩展名
var equivalentExtensions = map[string]string{
	".jpeg": ".jpg",
	".jpe":  ".jpg",
	".htm":  ".html",
	".tiff": ".tif",
	".mjs":  ".js",
}

// CanonicalExtension 返回内容类型对应的扩展名, 无法判断时返回空串
func CanonicalExtension(contentType string) string {
	ct, _ := models.SplitContentType(contentType)
	if ct == "" || genericTypes[ct] {
		return ""
	}
	if ext, ok := preferredExtensions[ct]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// SameExtension 两个扩展名是否等价
func SameExtension(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if n, ok := equivalentExtensions[a]; ok {
		a = n
	}
	if n, ok := equivalentExtensions[b]; ok {
		b = n
	}
	return a == b
}

// URLLookup 把绝对URL映射为替换后的相对URL
type URLLookup func(absolute string) (string, bool)

// LiveFallback 未保存到本地的URL改写为绝对URL, 离线打开时指向原网站
func LiveFallback(lookup URLLookup) URLLookup {
	return func(absolute string) (string, bool) {
		if target, ok := lookup(absolute); ok {
			return target, true
		}
		if u, err := url.Parse(absolute); err == nil && u.IsAbs() {
			return absolute, true
		}
		return "", false
	}
}

// LinkRewriter 修正资源文件名并改写样式表中的链接
// 所有改名都在同一把锁下进行, 保证资源名在目录内唯一
type LinkRewriter struct {
	storage *FileStorage
	mu      sync.Mutex
}

// NewLinkRewriter 创建改写器
func NewLinkRewriter(storage *FileStorage) *LinkRewriter {
	return &LinkRewriter{storage: storage}
}

// ClaimFile 为资源占用一个名字并创建空文件, 返回相对输出目录的路径
// 重复"取不冲突路径 -> 设置名字"直到请求的名字与分配的名字一致
func (w *LinkRewriter) ClaimFile(ref *ReferenceNode) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Join(ref.DirectoryToken, ReferencesDir)
	if err := w.storage.MkdirAll(dir); err != nil {
		return "", fmt.Errorf("创建资源目录失败: %w", err)
	}
	rel := w.claimLocked(dir, ref.FileName(), ref)
	if err := w.storage.Create(rel); err != nil {
		return "", err
	}
	return rel, nil
}

func (w *LinkRewriter) claimLocked(dir, requested string, ref *ReferenceNode) string {
	name := requested
	for {
		candidate := w.storage.NonConflictingPath(filepath.Join(dir, name))
		want := filepath.Base(candidate)
		got := ref.SetFileName(want)
		if got == want {
			return candidate
		}
		name = got
	}
}

// FixExtension 按实际内容类型修正资源扩展名
// 优先使用内容类型对应的扩展名, 其次是最终URL的扩展名; 改名后返回新路径
func (w *LinkRewriter) FixExtension(ref *ReferenceNode, contentType, finalURL string) (string, error) {
	current := ref.FileName()
	curExt := path.Ext(current)

	want := CanonicalExtension(contentType)
	if want == "" {
		if curExt != "" {
			return ref.RelativePath(), nil
		}
		want = sanitizeExt(path.Ext(lastSegment(finalURL)))
	}
	if want == "" || SameExtension(curExt, want) {
		return ref.RelativePath(), nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	oldRel := ref.RelativePath()
	dir := filepath.Dir(oldRel)
	newRel := w.claimLocked(dir, strings.TrimSuffix(current, curExt)+want, ref)
	if err := w.storage.Rename(oldRel, newRel); err != nil {
		ref.SetFileName(current)
		return oldRel, fmt.Errorf("修正扩展名失败 %s -> %s: %w", oldRel, newRel, err)
	}
	utils.Debugf("修正扩展名: %s -> %s", filepath.Base(oldRel), filepath.Base(newRel))
	return newRel, nil
}

// RewriteCSS 改写样式表中的 url() 和 @import
// 每个值先按cssURL解析为绝对URL再查找, 找不到时保持原样; 保留原有引号
func (w *LinkRewriter) RewriteCSS(css, cssURL string, lookup URLLookup) string {
	return RewriteCSS(css, cssURL, lookup)
}

// RewriteCSSFile 读取、改写并写回样式表文件
func (w *LinkRewriter) RewriteCSSFile(relPath, cssURL string, lookup URLLookup) error {
	data, err := w.storage.ReadFile(relPath)
	if err != nil {
		return fmt.Errorf("读取样式表失败: %w", err)
	}
	rewritten := RewriteCSS(string(data), cssURL, lookup)
	if rewritten == string(data) {
		return nil
	}
	return w.storage.WriteFile(relPath, []byte(rewritten))
}

// RewriteCSS 见 LinkRewriter.RewriteCSS
func RewriteCSS(css, cssURL string, lookup URLLookup) string {
	base, _ := url.Parse(cssURL)

	replace := func(pattern *regexp.Regexp, format func(quote, value string) string) func(string) string {
		return func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			quote, value := pickQuoted(sub)
			if value == "" || skipCSSValue(value) {
				return match
			}
			if target, ok := resolveLookup(base, value, lookup); ok {
				return format(quote, target)
			}
			return match
		}
	}

	css = cssURLPattern.ReplaceAllStringFunc(css, replace(cssURLPattern, func(q, v string) string {
		return "url(" + q + v + q + ")"
	}))
	css = cssImportPattern.ReplaceAllStringFunc(css, replace(cssImportPattern, func(q, v string) string {
		return "@import " + q + v + q
	}))
	return css
}

// ExtractCSSURLs 提取样式表中引用的URL
func ExtractCSSURLs(css, cssURL string) []models.ResourceURL {
	base, _ := url.Parse(cssURL)
	seen := make(map[string]bool)
	var out []models.ResourceURL

	for _, pattern := range []*regexp.Regexp{cssURLPattern, cssImportPattern} {
		for _, sub := range pattern.FindAllStringSubmatch(css, -1) {
			_, value := pickQuoted(sub)
			if value == "" || skipCSSValue(value) {
				continue
			}
			abs := resolveAgainst(base, value)
			if abs == "" || seen[abs] {
				continue
			}
			seen[abs] = true
			out = append(out, models.ResourceURL{Raw: value, Absolute: abs})
		}
	}
	return out
}

func pickQuoted(sub []string) (quote, value string) {
	switch {
	case len(sub) > 1 && sub[1] != "":
		return `"`, sub[1]
	case len(sub) > 2 && sub[2] != "":
		return `'`, sub[2]
	case len(sub) > 3:
		return "", strings.TrimSpace(sub[3])
	}
	return "", ""
}

func skipCSSValue(v string) bool {
	lower := strings.ToLower(strings.TrimSpace(v))
	return strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "#") ||
		strings.HasPrefix(lower, "about:") || strings.HasPrefix(lower, "javascript:")
}

func resolveLookup(base *url.URL, value string, lookup URLLookup) (string, bool) {
	if abs := resolveAgainst(base, value); abs != "" {
		stripped, frag := StripFragment(abs)
		if target, ok := lookup(stripped); ok {
			if frag != "" {
				target += "#" + frag
			}
			return target, true
		}
	}
	return lookup(value)
}

func resolveAgainst(base *url.URL, value string) string {
	ref, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return ""
	}
	if base == nil {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	return base.ResolveReference(ref).String()
}
