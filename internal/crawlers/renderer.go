package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var (
	ErrBrowserUnavailable = errors.New("浏览器不可用")
	ErrRenderMethod       = errors.New("渲染只支持GET请求")
)

// RendererConfig 浏览器渲染配置
type RendererConfig struct {
	Headless       bool
	WaitTime       time.Duration // 页面加载后额外等待(动态内容)
	HeaderProvider models.HeaderProvider
}

// RodRenderer 使用无头浏览器获取渲染后的页面
// 浏览器在第一次使用时启动
type RodRenderer struct {
	cfg RendererConfig

	mu      sync.Mutex
	browser *rod.Browser
	failed  error
}

// NewRodRenderer 创建渲染器
func NewRodRenderer(cfg RendererConfig) *RodRenderer {
	return &RodRenderer{cfg: cfg}
}

// launch 启动并连接浏览器, 失败后不再重试
func (r *RodRenderer) launch() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}
	if r.failed != nil {
		return nil, r.failed
	}

	l := launcher.New().Headless(r.cfg.Headless).Set("ignore-certificate-errors")
	controlURL, err := l.Launch()
	if err != nil {
		r.failed = fmt.Errorf("%w: 启动浏览器失败: %v", ErrBrowserUnavailable, err)
		return nil, r.failed
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		r.failed = fmt.Errorf("%w: 连接浏览器失败: %v", ErrBrowserUnavailable, err)
		return nil, r.failed
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	r.browser = browser
	return browser, nil
}

// Fetch 打开新标签页加载URL并返回渲染后的HTML
func (r *RodRenderer) Fetch(ctx context.Context, req *models.FetchRequest) (result *models.FetchResult, err error) {
	if req.Method != "" && req.Method != http.MethodGet {
		return nil, ErrRenderMethod
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &models.FetchError{URL: req.URL, Err: fmt.Errorf("页面渲染panic: %v", rec)}
			utils.Errorf("捕获panic: URL=%s, 错误=%v", req.URL, rec)
		}
	}()

	browser, err := r.launch()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, &models.FetchError{URL: req.URL, Err: fmt.Errorf("创建标签页失败: %w", err)}
	}
	defer page.Close()
	page = page.Context(ctx)

	if r.cfg.HeaderProvider != nil {
		if headers, herr := r.cfg.HeaderProvider.GetHeaders(); herr == nil && len(headers) > 0 {
			dict := make([]string, 0, len(headers)*2)
			for name, values := range headers {
				if len(values) > 0 {
					dict = append(dict, name, values[0])
				}
			}
			if cleanup, serr := page.SetExtraHeaders(dict); serr == nil {
				defer cleanup()
			}
		}
	}

	if err := page.Navigate(req.URL); err != nil {
		return nil, r.wrap(ctx, req.URL, "导航失败", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, r.wrap(ctx, req.URL, "等待页面加载失败", err)
	}

	if r.cfg.WaitTime > 0 {
		select {
		case <-ctx.Done():
			return nil, contextError(ctx, req.URL)
		case <-time.After(r.cfg.WaitTime):
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, r.wrap(ctx, req.URL, "读取页面失败", err)
	}

	finalURL := req.URL
	if info, ierr := page.Info(); ierr == nil && info.URL != "" {
		finalURL = info.URL
	}

	headers := http.Header{}
	headers.Set("Content-Type", "text/html; charset=utf-8")
	return &models.FetchResult{
		Body:        []byte(html),
		ContentType: headers.Get("Content-Type"),
		FinalURL:    finalURL,
		StatusCode:  http.StatusOK,
		Headers:     headers,
	}, nil
}

func (r *RodRenderer) wrap(ctx context.Context, rawURL, msg string, err error) error {
	if ctx.Err() != nil {
		return contextError(ctx, rawURL)
	}
	return &models.FetchError{URL: rawURL, Err: fmt.Errorf("%s: %w", msg, err)}
}

// Close 关闭浏览器
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	utils.Debugf("浏览器已关闭")
	return err
}

// CompositeFetcher 渲染请求优先使用浏览器, 失败时退回HTTP
type CompositeFetcher struct {
	HTTP     models.Fetcher
	Renderer models.Fetcher
}

// Fetch 实现 models.Fetcher
func (c *CompositeFetcher) Fetch(ctx context.Context, req *models.FetchRequest) (*models.FetchResult, error) {
	if req.Render && c.Renderer != nil && (req.Method == "" || req.Method == http.MethodGet) {
		result, err := c.Renderer.Fetch(ctx, req)
		if err == nil {
			return result, nil
		}
		if models.IsCancelled(err) || ctx.Err() != nil {
			return nil, err
		}
		utils.Warnf("浏览器渲染失败, 改用HTTP获取 [%s]: %v", req.URL, err)
	}
	return c.HTTP.Fetch(ctx, req)
}
