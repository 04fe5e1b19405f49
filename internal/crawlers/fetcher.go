package crawlers

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"
)

// FetcherConfig HTTP获取器配置
type FetcherConfig struct {
	UserAgent          string
	MaxBodySize        int           // 响应体上限(字节), 0表示不限制
	RequestTimeout     time.Duration // 单个请求的上限, ctx没有deadline时生效
	InsecureSkipVerify bool
	Limiter            *HostLimiter
	HeaderProvider     models.HeaderProvider
}

// CollyFetcher 基于Colly的HTTP获取器
// 支持 http/https 和 file 协议
type CollyFetcher struct {
	collector *colly.Collector
	cfg       FetcherConfig
	redactor  *utils.HeaderRedactor
}

type collyOutcome struct {
	resp *colly.Response
	err  error
}

// NewCollyFetcher 创建获取器
func NewCollyFetcher(cfg FetcherConfig) *CollyFetcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		MaxIdleConnsPerHost: 8,
	}
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))

	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	// Colly默认截断在10MB, 0需要显式传入才表示不限制
	opts = append(opts, colly.MaxBodySize(cfg.MaxBodySize))
	c := colly.NewCollector(opts...)
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.RequestTimeout)

	f := &CollyFetcher{
		collector: c,
		cfg:       cfg,
		redactor:  utils.NewHeaderRedactor(),
	}
	f.setupCallbacks()
	return f
}

// setupCallbacks 响应通过请求上下文传回调用方
func (f *CollyFetcher) setupCallbacks() {
	f.collector.OnRequest(func(r *colly.Request) {
		if f.cfg.HeaderProvider == nil {
			return
		}
		headers, err := f.cfg.HeaderProvider.GetHeaders()
		if err != nil {
			utils.Warnf("获取HTTP头部失败: %v", err)
			return
		}
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
		utils.Debugf("请求 %s %s [%s]", r.Method, r.URL, f.redactor.RedactToString(*r.Headers))
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("response", r)
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		r.Ctx.Put("response", r)
	})
}

// Fetch 执行请求, 在ctx结束时立即返回(后台请求由客户端超时兜底)
func (f *CollyFetcher) Fetch(ctx context.Context, req *models.FetchRequest) (*models.FetchResult, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &models.FetchError{URL: req.URL, Err: err}
	}

	if err := f.cfg.Limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, contextError(ctx, req.URL)
	}

	done := make(chan collyOutcome, 1)
	go func() {
		cctx := colly.NewContext()
		err := f.collector.Request(method, req.URL, nil, cctx, nil)
		resp, _ := cctx.GetAny("response").(*colly.Response)
		done <- collyOutcome{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, contextError(ctx, req.URL)
	case out := <-done:
		return f.toResult(req.URL, method, out)
	}
}

func (f *CollyFetcher) toResult(rawURL, method string, out collyOutcome) (*models.FetchResult, error) {
	if out.err != nil {
		status := 0
		if out.resp != nil {
			status = out.resp.StatusCode
		}
		if isTimeout(out.err) {
			return nil, &models.FetchError{URL: rawURL, Err: fmt.Errorf("%w: %v", models.ErrTimeout, out.err)}
		}
		return nil, &models.FetchError{URL: rawURL, StatusCode: status, Err: out.err}
	}
	if out.resp == nil {
		return nil, &models.FetchError{URL: rawURL, Err: errors.New("没有收到响应")}
	}

	resp := out.resp
	headers := http.Header{}
	if resp.Headers != nil {
		headers = resp.Headers.Clone()
	}

	if method != http.MethodHead {
		if err := f.checkComplete(headers, len(resp.Body)); err != nil {
			return nil, &models.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
		}
	}

	body, err := decodeBody(headers.Get("Content-Encoding"), resp.Body)
	if err != nil {
		utils.Warnf("解压响应失败 [%s]: %v", rawURL, err)
		body = resp.Body
	}
	contentType := headers.Get("Content-Type")
	body = toUTF8(contentType, body)

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &models.FetchResult{
		Body:        body,
		ContentType: contentType,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		Headers:     headers,
	}, nil
}

// checkComplete 检查响应体是否被截断
// gzip响应由Colly解压, 长度无法与Content-Length比较
func (f *CollyFetcher) checkComplete(headers http.Header, received int) error {
	if strings.Contains(strings.ToLower(headers.Get("Content-Encoding")), "gzip") {
		return nil
	}
	declared := int64(-1)
	if v := headers.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			declared = n
		}
	}

	if declared >= 0 && int64(received) < declared {
		if f.cfg.MaxBodySize > 0 && declared > int64(f.cfg.MaxBodySize) {
			return fmt.Errorf("响应体超过上限: %d 字节 (最大 %d)", declared, f.cfg.MaxBodySize)
		}
		return fmt.Errorf("响应体不完整: 收到 %d 字节, 声明 %d 字节", received, declared)
	}
	if declared < 0 && f.cfg.MaxBodySize > 0 && received >= f.cfg.MaxBodySize {
		return fmt.Errorf("响应体达到上限 %d 字节, 内容可能被截断", f.cfg.MaxBodySize)
	}
	return nil
}

// decodeBody 根据Content-Encoding解压响应体
// gzip已由Colly处理
func decodeBody(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "", "identity", "gzip", "x-gzip":
		return body, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}

// toUTF8 响应头未声明字符集的HTML按meta/内容探测转为UTF-8
// 已声明字符集的由Colly转换
func toUTF8(contentType string, body []byte) []byte {
	ct, params := models.SplitContentType(contentType)
	if !models.IsWebPageType(ct) || strings.Contains(strings.ToLower(params), "charset") {
		return body
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || name == "windows-1252" && isASCII(body) {
		return body
	}
	decoded, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return body
	}
	return decoded
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, models.ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// contextError 把ctx结束原因转为错误: 超时 -> ErrTimeout, 取消 -> ErrCaptureCancelled
func contextError(ctx context.Context, rawURL string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &models.FetchError{URL: rawURL, Err: models.ErrTimeout}
	}
	return models.ErrCaptureCancelled
}
