package crawlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
	"github.com/temoto/robotstxt"
)

// RobotsGuard 按robots.txt判断子页面是否允许抓取
// 每个主机只获取一次; 获取失败时放行
type RobotsGuard struct {
	fetcher   models.Fetcher
	userAgent string
	timeout   time.Duration

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsGuard 创建robots检查器
func NewRobotsGuard(fetcher models.Fetcher, userAgent string, timeout time.Duration) *RobotsGuard {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RobotsGuard{
		fetcher:   fetcher,
		userAgent: userAgent,
		timeout:   timeout,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed URL是否允许抓取, 非http(s)总是允许
func (g *RobotsGuard) Allowed(ctx context.Context, rawURL string) bool {
	if g == nil {
		return true
	}
	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() {
		return false
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return true
	}

	rules := g.rules(ctx, target)
	if rules == nil {
		return true
	}

	agent := g.userAgent
	if agent == "" {
		agent = "*"
	}
	group := rules.FindGroup(agent)
	if group == nil {
		return true
	}
	p := target.EscapedPath()
	if p == "" {
		p = "/"
	}
	return group.Test(p)
}

func (g *RobotsGuard) rules(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(target.Scheme + "://" + target.Host)

	g.mu.Lock()
	if data, ok := g.cache[host]; ok {
		g.mu.Unlock()
		return data
	}
	g.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var data *robotstxt.RobotsData
	result, err := g.fetcher.Fetch(fctx, &models.FetchRequest{URL: host + "/robots.txt", Method: http.MethodGet})
	switch {
	case err == nil:
		data, err = robotstxt.FromStatusAndBytes(result.StatusCode, result.Body)
	default:
		var fe *models.FetchError
		if errors.As(err, &fe) && fe.StatusCode > 0 {
			data, err = robotstxt.FromStatusAndBytes(fe.StatusCode, nil)
		}
	}
	if err != nil {
		utils.Debugf("robots.txt不可用 [%s]: %v", host, err)
		data = nil
	}

	g.mu.Lock()
	g.cache[host] = data
	g.mu.Unlock()
	return data
}
