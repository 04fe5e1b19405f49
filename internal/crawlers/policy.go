package crawlers

import (
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"golang.org/x/net/publicsuffix"
)

// CrawlPolicy 一次抓取的策略与共享状态
// 配置来自 models.CapturePolicy, 运行期状态(已发现页面、超时主机、页面计数)
// 在发现阶段和下载阶段之间共享, 所有方法并发安全
type CrawlPolicy struct {
	cfg        models.CapturePolicy
	rootDomain string

	mu            sync.RWMutex
	discovered    map[string]*PageNode
	timedOutHosts map[string]struct{}
	pageCount     atomic.Int64
}

// NewCrawlPolicy 创建策略, rootURL 用于推导可注册域名
func NewCrawlPolicy(cfg models.CapturePolicy, rootURL string) *CrawlPolicy {
	if cfg.DownloadFilter == "" {
		cfg.DownloadFilter = models.FilterAllFiles
	}
	p := &CrawlPolicy{
		cfg:           cfg,
		discovered:    make(map[string]*PageNode),
		timedOutHosts: make(map[string]struct{}),
	}
	p.rootDomain = strings.ToLower(cfg.RootDomain)
	if p.rootDomain == "" {
		if u, err := url.Parse(rootURL); err == nil {
			p.rootDomain = registrableDomain(u.Hostname())
		}
	}
	return p
}

// Config 返回配置副本
func (p *CrawlPolicy) Config() models.CapturePolicy {
	return p.cfg
}

// RootDomain 返回用于域名限制的可注册域名
func (p *CrawlPolicy) RootDomain() string {
	return p.rootDomain
}

// ShouldContinue 深度d的页面是否继续展开子页面
func (p *CrawlPolicy) ShouldContinue(depth int) bool {
	if p.maxPagesReached() {
		return false
	}
	if p.cfg.DepthLimited() && depth >= p.cfg.MaxDepth {
		return false
	}
	return true
}

// ShouldDownloadURL 只根据URL判断是否允许下载
func (p *CrawlPolicy) ShouldDownloadURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "file" && scheme != "http" && scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if p.cfg.RestrictToDomain && scheme != "file" {
		if registrableDomain(host) != p.rootDomain {
			return false
		}
	}

	if p.cfg.RemoveHostOnTimeout && host != "" && p.IsTimedOut(host) {
		return false
	}
	return true
}

// ShouldDownloadInfo 在URL检查之外再按页面数、大小和类别判断
func (p *CrawlPolicy) ShouldDownloadInfo(info *models.URLContentTypeInfo) bool {
	if info == nil {
		return false
	}
	if !p.ShouldDownloadURL(info.FinalURL) {
		return false
	}
	if p.maxPagesReached() {
		return false
	}
	if p.cfg.MaxFileSize > 0 && info.HasKnownLength() && info.ContentLength > p.cfg.MaxFileSize {
		return false
	}

	switch p.cfg.DownloadFilter {
	case models.FilterPagesOnly:
		return info.IsWebPage()
	case models.FilterPagesAndDocuments:
		return info.IsWebPage() || info.IsDocument()
	default:
		return true
	}
}

// RegisterPage 登记已发现页面, 重复登记无效果
// countsAsPage 为false时(框架)不计入页面数
func (p *CrawlPolicy) RegisterPage(rawURL string, node *PageNode, countsAsPage bool) {
	key := CanonicalURL(rawURL)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.discovered[key]; exists {
		return
	}
	p.discovered[key] = node
	if countsAsPage {
		p.pageCount.Add(1)
	}
}

// RegisterTimeout 记录超时页面的主机
func (p *CrawlPolicy) RegisterTimeout(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return
	}
	host := strings.ToLower(u.Hostname())

	p.mu.Lock()
	p.timedOutHosts[host] = struct{}{}
	p.mu.Unlock()
}

// IsTimedOut 主机是否已超时
func (p *CrawlPolicy) IsTimedOut(host string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.timedOutHosts[strings.ToLower(host)]
	return ok
}

// IsURLTimedOut URL的主机是否已超时
func (p *CrawlPolicy) IsURLTimedOut(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return p.IsTimedOut(u.Hostname())
}

// IsDiscovered URL是否已作为页面登记
func (p *CrawlPolicy) IsDiscovered(rawURL string) bool {
	_, ok := p.DiscoveredPage(rawURL)
	return ok
}

// DiscoveredPage 返回已登记的页面节点
func (p *CrawlPolicy) DiscoveredPage(rawURL string) (*PageNode, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	node, ok := p.discovered[CanonicalURL(rawURL)]
	return node, ok
}

// PageCount 已计数的页面数
func (p *CrawlPolicy) PageCount() int {
	return int(p.pageCount.Load())
}

// TimedOutHosts 返回超时主机列表
func (p *CrawlPolicy) TimedOutHosts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hosts := make([]string, 0, len(p.timedOutHosts))
	for h := range p.timedOutHosts {
		hosts = append(hosts, h)
	}
	return hosts
}

func (p *CrawlPolicy) maxPagesReached() bool {
	return p.cfg.MaxPages > 0 && p.PageCount() >= p.cfg.MaxPages
}

// registrableDomain 返回 eTLD+1, 无法计算时(IP、localhost)返回主机本身
func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// CanonicalURL 规范化URL用作键
// scheme和主机小写, 去掉默认端口和片段, 空路径补 "/"
func CanonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	if strings.Contains(u.Hostname(), ":") {
		// IPv6
		host = "[" + strings.ToLower(u.Hostname()) + "]"
		if port != "" {
			host += ":" + port
		}
	}
	u.Host = host
	if u.Path == "" && (u.Scheme == "http" || u.Scheme == "https") {
		u.Path = "/"
	}
	return u.String()
}

// StripFragment 去掉URL片段, 返回去掉后的URL和片段
func StripFragment(rawURL string) (string, string) {
	if i := strings.Index(rawURL, "#"); i >= 0 {
		return rawURL[:i], rawURL[i+1:]
	}
	return rawURL, ""
}
