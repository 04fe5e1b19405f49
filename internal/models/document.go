package models

import (
	"strconv"
	"strings"
)

// ResourceURL 文档中出现的资源引用
type ResourceURL struct {
	Raw      string `json:"raw"`      // 文档中的原始写法
	Absolute string `json:"absolute"` // 基于BaseURL解析后的绝对URL
}

// Document 解析后的HTML文档
type Document struct {
	URL     string `json:"url"`      // 获取时的最终URL
	BaseURL string `json:"base_url"` // 用于解析相对链接(考虑<base href>)
	Title   string `json:"title"`
	HTML    []byte `json:"-"`

	Resources   []ResourceURL `json:"resources"`   // 图片、脚本、样式表等
	Anchors     []ResourceURL `json:"anchors"`     // <a href>
	Areas       []ResourceURL `json:"areas"`       // <area href>
	Frames      []ResourceURL `json:"frames"`      // <frame>/<iframe>
	Stylesheets []ResourceURL `json:"stylesheets"` // <link rel=stylesheet>

	HasFramesOrStyles bool `json:"has_frames_or_styles"`
}

// Links 返回子页面候选(锚点 + AREA)
func (d *Document) Links() []ResourceURL {
	links := make([]ResourceURL, 0, len(d.Anchors)+len(d.Areas))
	links = append(links, d.Anchors...)
	links = append(links, d.Areas...)
	return links
}

func parseContentLength(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
