package crawlers

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/PageCapture/internal/models"
)

// resourceSelectors 需要下载的资源: 选择器 -> 属性
var resourceSelectors = []struct {
	selector string
	attr     string
}{
	{"img[src]", "src"},
	{"img[lowsrc]", "lowsrc"},
	{"script[src]", "src"},
	{"link[href]", "href"},
	{"input[type=image][src]", "src"},
	{"embed[src]", "src"},
	{"object[data]", "data"},
	{"video[poster]", "poster"},
	{"video[src]", "src"},
	{"audio[src]", "src"},
	{"source[src]", "src"},
	{"track[src]", "src"},
	{"[background]", "background"},
}

// 需要下载的 <link rel>
var resourceLinkRels = map[string]bool{
	"stylesheet":       true,
	"icon":             true,
	"shortcut":         true,
	"apple-touch-icon": true,
	"preload":          true,
}

// GoqueryExtractor 基于goquery的DOM提取器
type GoqueryExtractor struct{}

// NewGoqueryExtractor 创建提取器
func NewGoqueryExtractor() *GoqueryExtractor {
	return &GoqueryExtractor{}
}

// Extract 解析HTML并提取资源、锚点、框架和样式表
func (e *GoqueryExtractor) Extract(html []byte, baseURL string) (*models.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("无效的基准URL: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	result := &models.Document{
		URL:     baseURL,
		BaseURL: base.String(),
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		HTML:    html,
	}

	seen := make(map[string]bool)
	addResource := func(raw string) {
		if r, ok := resolveResource(base, raw); ok && !seen[r.Absolute] {
			seen[r.Absolute] = true
			result.Resources = append(result.Resources, r)
		}
	}

	for _, rs := range resourceSelectors {
		doc.Find(rs.selector).Each(func(_ int, s *goquery.Selection) {
			if goquery.NodeName(s) == "link" && !isResourceLink(s) {
				return
			}
			raw, _ := s.Attr(rs.attr)
			addResource(raw)
		})
	}

	doc.Find("img[srcset], source[srcset]").Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr("srcset")
		for _, candidate := range parseSrcset(raw) {
			addResource(candidate)
		}
	})

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if relHas(s, "stylesheet") {
			raw, _ := s.Attr("href")
			if r, ok := resolveResource(base, raw); ok {
				result.Stylesheets = append(result.Stylesheets, r)
			}
		}
	})

	// 内联样式
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, r := range ExtractCSSURLs(style, base.String()) {
			addResource(r.Raw)
		}
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, r := range ExtractCSSURLs(s.Text(), base.String()) {
			addResource(r.Raw)
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr("href")
		if r, ok := resolveLink(base, raw); ok {
			result.Anchors = append(result.Anchors, r)
		}
	})
	doc.Find("area[href]").Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr("href")
		if r, ok := resolveLink(base, raw); ok {
			result.Areas = append(result.Areas, r)
		}
	})
	doc.Find("frame[src], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr("src")
		if r, ok := resolveLink(base, raw); ok {
			result.Frames = append(result.Frames, r)
		}
	})

	result.HasFramesOrStyles = len(result.Frames) > 0 || len(result.Stylesheets) > 0 ||
		doc.Find("style, [style]").Length() > 0

	return result, nil
}

func isResourceLink(s *goquery.Selection) bool {
	rel, _ := s.Attr("rel")
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		if resourceLinkRels[r] {
			return true
		}
	}
	return false
}

func relHas(s *goquery.Selection, want string) bool {
	rel, _ := s.Attr("rel")
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		if r == want {
			return true
		}
	}
	return false
}

// resolveResource 解析资源URL, 跳过空值、锚点和javascript伪协议
// data: URL原样保留, 由下载阶段跳过
func resolveResource(base *url.URL, raw string) (models.ResourceURL, bool) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "about:") {
		return models.ResourceURL{}, false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return models.ResourceURL{}, false
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	return models.ResourceURL{Raw: raw, Absolute: abs.String()}, true
}

// resolveLink 解析页面链接, 只保留 http/https/file; 片段保留在Absolute中
func resolveLink(base *url.URL, raw string) (models.ResourceURL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return models.ResourceURL{}, false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return models.ResourceURL{}, false
	}
	abs := base.ResolveReference(ref)
	switch strings.ToLower(abs.Scheme) {
	case "http", "https", "file":
	default:
		return models.ResourceURL{}, false
	}
	return models.ResourceURL{Raw: raw, Absolute: abs.String()}, true
}

// parseSrcset 取出srcset中的每个候选URL
func parseSrcset(srcset string) []string {
	var urls []string
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}
