package crawlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/models"
)

func TestContentClassifier_Classify(t *testing.T) {
	netErr := &models.FetchError{URL: "x", Err: errors.New("connection refused")}
	fetcher := newFakeFetcher(map[string]fakeResponse{
		"http://example.com/report.pdf": {contentType: "text/html"},
		"http://example.com/page":       {contentType: "text/html; charset=GBK"},
		"http://example.com/head-fails": {contentType: "image/png", headErr: netErr},
		"http://example.com/down.png":   {contentType: "image/png", headErr: netErr, err: netErr},
		"http://example.com/down.xyz":   {headErr: netErr, err: netErr},
		"http://example.com/down":       {headErr: netErr, err: netErr},
	})
	c := NewContentClassifier(fetcher, NewLRUHeaderCache(16))

	tests := []struct {
		name        string
		url         string
		expectNil   bool
		contentType string
		encoding    string
	}{
		{name: "PDF扩展名不探测", url: "http://example.com/report.pdf", contentType: models.MimePDF},
		{name: "HEAD成功", url: "http://example.com/page", contentType: "text/html", encoding: "charset=GBK"},
		{name: "HEAD失败回退GET", url: "http://example.com/head-fails", contentType: "image/png"},
		{name: "网络失败按扩展名猜测", url: "http://example.com/down.png", contentType: "image/png"},
		{name: "未知扩展名的网络URL视为网页", url: "http://example.com/down.xyz", contentType: models.MimeHTML},
		{name: "无扩展名的网络URL视为网页", url: "http://example.com/down", contentType: models.MimeHTML},
		{name: "本地文件未知扩展名为二进制", url: "file:///tmp/a.xyz", contentType: models.MimeOctetStream},
		{name: "本地DLL为二进制", url: "file:///tmp/a.dll", contentType: models.MimeOctetStream},
		{name: "网络DLL视为网页", url: "http://example.com/isapi.dll", contentType: models.MimeHTML},
		{name: "相对URL返回nil", url: "page.html", expectNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := c.Classify(context.Background(), tt.url, time.Second)
			if tt.expectNil {
				if info != nil {
					t.Errorf("期望nil, 实际 %+v", info)
				}
				return
			}
			if info == nil {
				t.Fatalf("期望分类结果, 实际为nil")
			}
			if info.ContentType != tt.contentType {
				t.Errorf("期望类型 %s, 实际 %s", tt.contentType, info.ContentType)
			}
			if tt.encoding != "" && info.ContentEncoding != tt.encoding {
				t.Errorf("期望编码 %s, 实际 %s", tt.encoding, info.ContentEncoding)
			}
		})
	}

	if n := fetcher.count(http.MethodHead, "http://example.com/report.pdf"); n != 0 {
		t.Errorf("PDF不应发起网络请求, 实际 %d 次", n)
	}
	if n := fetcher.count(http.MethodGet, "http://example.com/head-fails"); n != 1 {
		t.Errorf("HEAD失败后应GET一次, 实际 %d 次", n)
	}
}

func TestContentClassifier_UsesCache(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakeResponse{
		"http://example.com/a": {contentType: "text/css"},
	})
	cache := NewLRUHeaderCache(16)
	c := NewContentClassifier(fetcher, cache)

	for i := 0; i < 3; i++ {
		info := c.Classify(context.Background(), "http://example.com/a", time.Second)
		if info == nil || info.ContentType != models.MimeCSS {
			t.Fatalf("第%d次分类结果不正确: %+v", i+1, info)
		}
	}

	if n := fetcher.count(http.MethodHead, "http://example.com/a"); n != 1 {
		t.Errorf("命中缓存后不应再探测, 实际HEAD %d 次", n)
	}
	if cache.Len() != 1 {
		t.Errorf("期望缓存1条, 实际 %d", cache.Len())
	}
}

func TestLRUHeaderCache_Evicts(t *testing.T) {
	cache := NewLRUHeaderCache(2)
	for _, u := range []string{"a", "b", "c"} {
		h := http.Header{}
		h.Set("Content-Type", "text/html")
		cache.Store(u, h)
	}

	if _, ok := cache.Lookup("a"); ok {
		t.Errorf("最早的条目应被淘汰")
	}
	h, ok := cache.Lookup("c")
	if !ok {
		t.Fatalf("最新的条目应存在")
	}
	h.Set("Content-Type", "changed")
	if again, _ := cache.Lookup("c"); again.Get("Content-Type") != "text/html" {
		t.Errorf("返回的头应为副本")
	}
}
