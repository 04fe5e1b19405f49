package crawlers

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kennygrant/sanitize"
)

const (
	defaultPageName      = "index.htm"
	pageExtension        = ".htm"
	maxPageNameLength    = 20
	maxResourceNameRunes = 64
	maxExtensionLength   = 10
)

// PageFileName 根据URL生成页面文件名
// 取路径最后一段; 为空时为 index.htm, 无扩展名补 .htm;
// 非根页面名字过长时改用随机名; 扩展名统一为 .htm/.html
func PageFileName(rawURL string, isRoot bool) string {
	seg := lastSegment(rawURL)
	if seg == "" {
		return defaultPageName
	}
	if !strings.Contains(seg, ".") {
		seg += pageExtension
	}
	if !isRoot && utf8.RuneCountInString(seg) > maxPageNameLength {
		return shortID() + pageExtension
	}

	ext := path.Ext(seg)
	stem := sanitizeStem(strings.TrimSuffix(seg, ext))
	if stem == "" {
		return defaultPageName
	}
	switch strings.ToLower(ext) {
	case ".htm", ".html":
		return stem + strings.ToLower(ext)
	}
	return stem + pageExtension
}

// ResourceFileName 根据URL生成资源文件名
// 取路径最后一段并清理非法字符, 过长时截断(保留扩展名), 为空时用随机名
func ResourceFileName(rawURL string) string {
	seg := lastSegment(rawURL)
	ext := path.Ext(seg)
	stem := sanitizeStem(strings.TrimSuffix(seg, ext))
	ext = sanitizeExt(ext)

	if stem == "" {
		stem = shortID()
	}
	if limit := maxResourceNameRunes - utf8.RuneCountInString(ext); utf8.RuneCountInString(stem) > limit {
		stem = string([]rune(stem)[:limit])
	}
	return stem + ext
}

// AlternativeName 冲突时的候选名 base_N.ext
func AlternativeName(name string, n int) string {
	ext := path.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}

func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	seg := path.Base(p)
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}

func sanitizeStem(stem string) string {
	return strings.Trim(sanitize.BaseName(stem), "-")
}

func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimPrefix(ext, ".")) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 || b.Len() > maxExtensionLength {
		return ""
	}
	return "." + b.String()
}

func shortID() string {
	return strings.SplitN(uuid.New().String(), "-", 2)[0]
}

// nameRegistry 记录同一目录下已被占用的文件名
type nameRegistry struct {
	mu    sync.Mutex
	names map[string]interface{}
}

func newNameRegistry() *nameRegistry {
	return &nameRegistry{names: make(map[string]interface{})}
}

// claim 为owner占用名字; 已被他人占用时返回一个未占用的候选名
// owner原先占用的名字会被释放
func (r *nameRegistry) claim(owner interface{}, previous, requested string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous != "" && previous != requested {
		if r.names[strings.ToLower(previous)] == owner {
			delete(r.names, strings.ToLower(previous))
		}
	}

	name := requested
	for i := 1; ; i++ {
		holder, taken := r.names[strings.ToLower(name)]
		if !taken || holder == owner {
			break
		}
		name = AlternativeName(requested, i)
	}
	r.names[strings.ToLower(name)] = owner
	return name
}

// release 释放名字
func (r *nameRegistry) release(owner interface{}, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[strings.ToLower(name)] == owner {
		delete(r.names, strings.ToLower(name))
	}
}
