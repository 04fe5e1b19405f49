package crawlers

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/andybalholm/brotli"
)

type staticHeaders http.Header

func (h staticHeaders) GetHeaders() (http.Header, error) {
	return http.Header(h).Clone(), nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>你好</body></html>"))
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page.html", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/br.css", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte("body { color: red }"))
		bw.Close()
		w.Header().Set("Content-Type", "text/css")
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/echo-header", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(r.Header.Get("X-Token")))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCollyFetcher_Fetch(t *testing.T) {
	server := newTestServer(t)
	f := NewCollyFetcher(FetcherConfig{
		UserAgent:      "PageCapture-Test",
		HeaderProvider: staticHeaders{"X-Token": []string{"secret"}},
	})

	tests := []struct {
		name        string
		path        string
		method      string
		body        string
		contentType string
		finalPath   string
		status      int
	}{
		{name: "普通页面", path: "/page.html", body: "<html><body>你好</body></html>", contentType: "text/html; charset=utf-8", finalPath: "/page.html"},
		{name: "跟随重定向", path: "/old", body: "<html><body>你好</body></html>", contentType: "text/html; charset=utf-8", finalPath: "/page.html"},
		{name: "HEAD请求", path: "/page.html", method: http.MethodHead, body: "", contentType: "text/html; charset=utf-8", finalPath: "/page.html"},
		{name: "brotli解压", path: "/br.css", body: "body { color: red }", contentType: "text/css", finalPath: "/br.css"},
		{name: "自定义头部", path: "/echo-header", body: "secret", contentType: "text/plain", finalPath: "/echo-header"},
		{name: "404", path: "/missing", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.Fetch(context.Background(), &models.FetchRequest{URL: server.URL + tt.path, Method: tt.method})
			if tt.status != 0 {
				var fe *models.FetchError
				if !errors.As(err, &fe) {
					t.Fatalf("期望 FetchError, 实际 %v", err)
				}
				if fe.StatusCode != tt.status {
					t.Errorf("期望状态码 %d, 实际 %d", tt.status, fe.StatusCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("请求失败: %v", err)
			}
			if string(result.Body) != tt.body {
				t.Errorf("期望内容 %q, 实际 %q", tt.body, result.Body)
			}
			if result.ContentType != tt.contentType {
				t.Errorf("期望类型 %s, 实际 %s", tt.contentType, result.ContentType)
			}
			if result.FinalURL != server.URL+tt.finalPath {
				t.Errorf("期望最终URL %s, 实际 %s", server.URL+tt.finalPath, result.FinalURL)
			}
		})
	}
}

func TestCollyFetcher_TimeoutAndCancel(t *testing.T) {
	server := newTestServer(t)
	f := NewCollyFetcher(FetcherConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, &models.FetchRequest{URL: server.URL + "/slow"})
	if !errors.Is(err, models.ErrTimeout) {
		t.Errorf("期望 ErrTimeout, 实际 %v", err)
	}

	cctx, ccancel := context.WithCancel(context.Background())
	ccancel()
	_, err = f.Fetch(cctx, &models.FetchRequest{URL: server.URL + "/slow"})
	if !models.IsCancelled(err) {
		t.Errorf("期望 ErrCaptureCancelled, 实际 %v", err)
	}
}

func TestCollyFetcher_FileScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.html")
	if err := os.WriteFile(path, []byte("<p>local</p>"), 0644); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}

	f := NewCollyFetcher(FetcherConfig{})
	result, err := f.Fetch(context.Background(), &models.FetchRequest{URL: "file://" + filepath.ToSlash(path)})
	if err != nil {
		t.Fatalf("读取本地文件失败: %v", err)
	}
	if string(result.Body) != "<p>local</p>" {
		t.Errorf("本地文件内容不正确: %q", result.Body)
	}
}

func TestDecodeBody(t *testing.T) {
	var deflated bytes.Buffer
	fw, _ := flate.NewWriter(&deflated, flate.DefaultCompression)
	fw.Write([]byte("deflate内容"))
	fw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write([]byte("brotli内容"))
	bw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
		expected string
	}{
		{name: "无编码", encoding: "", body: []byte("plain"), expected: "plain"},
		{name: "deflate", encoding: "deflate", body: deflated.Bytes(), expected: "deflate内容"},
		{name: "brotli", encoding: "BR", body: br.Bytes(), expected: "brotli内容"},
		{name: "未知编码原样返回", encoding: "zstd", body: []byte("raw"), expected: "raw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBody(tt.encoding, tt.body)
			if err != nil {
				t.Fatalf("解压失败: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("期望 %q, 实际 %q", tt.expected, got)
			}
		})
	}
}

func TestHostLimiter(t *testing.T) {
	var nilLimiter *HostLimiter
	if err := nilLimiter.Wait(context.Background(), "example.com"); err != nil {
		t.Errorf("nil限速器不应返回错误: %v", err)
	}
	if NewHostLimiter(0, 1) != nil {
		t.Errorf("速率为0时应不限速")
	}

	l := NewHostLimiter(20, 1)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background(), "example.com"); err != nil {
			t.Fatalf("等待失败: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("同一主机应被限速, 实际耗时 %v", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx, "example.com"); err == nil {
		t.Errorf("已取消的ctx应返回错误")
	}
}

func TestCollyFetcher_BodySizeLimit(t *testing.T) {
	const large = 11 * 1024 * 1024
	mux := http.NewServeMux()
	mux.HandleFunc("/large.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(large))
		w.Write(bytes.Repeat([]byte("a"), large))
	})
	mux.HandleFunc("/chunked.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		for i := 0; i < 4; i++ {
			w.Write(bytes.Repeat([]byte("b"), 1024))
			w.(http.Flusher).Flush()
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	tests := []struct {
		name      string
		path      string
		maxBody   int
		expectLen int
		expectErr bool
	}{
		{name: "0表示不限制", path: "/large.bin", maxBody: 0, expectLen: large},
		{name: "声明长度超过上限", path: "/large.bin", maxBody: 1024, expectErr: true},
		{name: "分块响应超过上限", path: "/chunked.bin", maxBody: 1024, expectErr: true},
		{name: "分块响应未超过上限", path: "/chunked.bin", maxBody: 8192, expectLen: 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewCollyFetcher(FetcherConfig{MaxBodySize: tt.maxBody})
			result, err := f.Fetch(context.Background(), &models.FetchRequest{URL: server.URL + tt.path})
			if tt.expectErr {
				var fe *models.FetchError
				if !errors.As(err, &fe) {
					t.Fatalf("期望截断的响应返回 FetchError, 实际 %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("请求失败: %v", err)
			}
			if len(result.Body) != tt.expectLen {
				t.Errorf("期望 %d 字节, 实际 %d 字节", tt.expectLen, len(result.Body))
			}
		})
	}
}
