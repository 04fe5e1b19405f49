package crawlers

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"golang.org/x/net/html"
)

// linkAttributes 可能包含URL的属性
var linkAttributes = map[string]bool{
	"href":       true,
	"src":        true,
	"background": true,
	"poster":     true,
	"data":       true,
	"lowsrc":     true,
}

// TokenEmitter 基于 x/net/html 分词器的HTML输出
// 只改写链接属性、内联样式和<style>内容, 其余内容按原样输出
type TokenEmitter struct{}

// NewTokenEmitter 创建输出器
func NewTokenEmitter() *TokenEmitter {
	return &TokenEmitter{}
}

// Emit 按urlMap改写文档并写入w
// urlMap的键为规范化的绝对URL, 不在其中的链接改写为绝对URL;
// <base>标签被移除, meta字符集统一为utf-8
func (e *TokenEmitter) Emit(w io.Writer, doc *models.Document, urlMap map[string]string) error {
	base, err := url.Parse(doc.BaseURL)
	if err != nil {
		base = &url.URL{}
	}
	lookup := LiveFallback(func(abs string) (string, bool) {
		if v, ok := urlMap[CanonicalURL(abs)]; ok {
			return v, true
		}
		v, ok := urlMap[abs]
		return v, ok
	})

	bw := bufio.NewWriter(w)
	z := html.NewTokenizer(bytes.NewReader(doc.HTML))
	inStyle := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return bw.Flush()
			}
			return fmt.Errorf("解析HTML失败: %w", z.Err())

		case html.StartTagToken, html.SelfClosingTagToken:
			raw := append([]byte(nil), z.Raw()...)
			tok := z.Token()
			if tok.Data == "base" {
				continue
			}
			if tok.Data == "style" && tt == html.StartTagToken {
				inStyle = true
			}
			if rewriteTag(&tok, base, lookup) {
				bw.WriteString(tok.String())
			} else {
				bw.Write(raw)
			}

		case html.EndTagToken:
			raw := z.Raw()
			if name, _ := z.TagName(); string(name) == "style" {
				inStyle = false
			}
			bw.Write(raw)

		case html.TextToken:
			if inStyle {
				bw.WriteString(RewriteCSS(string(z.Raw()), base.String(), lookup))
			} else {
				bw.Write(z.Raw())
			}

		default:
			bw.Write(z.Raw())
		}
	}
}

// rewriteTag 改写标签属性, 有改动时返回true
func rewriteTag(tok *html.Token, base *url.URL, lookup URLLookup) bool {
	changed := false
	for i, attr := range tok.Attr {
		key := strings.ToLower(attr.Key)
		switch {
		case linkAttributes[key]:
			if v, ok := rewriteValue(base, attr.Val, lookup); ok && v != attr.Val {
				tok.Attr[i].Val = v
				changed = true
			}
		case key == "srcset":
			if v, ok := rewriteSrcset(base, attr.Val, lookup); ok && v != attr.Val {
				tok.Attr[i].Val = v
				changed = true
			}
		case key == "style":
			if v := RewriteCSS(attr.Val, base.String(), lookup); v != attr.Val {
				tok.Attr[i].Val = v
				changed = true
			}
		case key == "charset" && tok.Data == "meta":
			if !strings.EqualFold(attr.Val, "utf-8") {
				tok.Attr[i].Val = "utf-8"
				changed = true
			}
		case key == "content" && tok.Data == "meta" && isContentTypeMeta(tok):
			if v := "text/html; charset=utf-8"; attr.Val != v {
				tok.Attr[i].Val = v
				changed = true
			}
		}
	}
	return changed
}

func rewriteValue(base *url.URL, value string, lookup URLLookup) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, "#") || strings.HasPrefix(strings.ToLower(value), "data:") {
		return "", false
	}
	return resolveLookup(base, value, lookup)
}

func rewriteSrcset(base *url.URL, srcset string, lookup URLLookup) (string, bool) {
	parts := strings.Split(srcset, ",")
	changed := false
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
		fields := strings.Fields(parts[i])
		if len(fields) == 0 {
			continue
		}
		if v, ok := rewriteValue(base, fields[0], lookup); ok {
			fields[0] = v
			parts[i] = strings.Join(fields, " ")
			changed = true
		}
	}
	return strings.Join(parts, ", "), changed
}

func isContentTypeMeta(tok *html.Token) bool {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, "http-equiv") && strings.EqualFold(a.Val, "content-type") {
			return true
		}
	}
	return false
}
