package core

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/RecoveryAshes/PageCapture/internal/config"
	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 管理HTTP请求头部的生命周期
// 实现 HeaderProvider 接口, 下载协程会并发调用 GetHeaders
type HeaderManager struct {
	configFile string

	// defaults 系统默认头部 (硬编码)
	defaults http.Header

	// config 从配置文件加载的头部 (含cookies合并出的Cookie头部)
	config http.Header

	// cli 从命令行参数解析的头部
	cli http.Header

	validator    *utils.HeaderValidator
	redactor     *utils.HeaderRedactor
	configLoader *config.HeaderConfigLoader

	mu     sync.Mutex
	loaded bool
	merged http.Header
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - configFile: 配置文件路径 (如为空则使用默认路径)
//   - cliHeaders: 命令行传递的头部字符串列表 ("Name: Value")
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		configFile:   configFile,
		defaults:     getDefaultHeaders(),
		config:       make(http.Header),
		validator:    utils.NewHeaderValidator(),
		redactor:     utils.NewHeaderRedactor(),
		configLoader: config.NewHeaderConfigLoader(configFile),
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	} else {
		hm.cli = make(http.Header)
	}

	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// LoadConfig 加载配置文件, 已加载则跳过
func (hm *HeaderManager) LoadConfig() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.loadLocked()
}

func (hm *HeaderManager) loadLocked() error {
	if hm.loaded {
		return nil
	}

	headerConfig, err := hm.configLoader.LoadConfig()
	if err != nil {
		utils.Errorf("加载HTTP头部配置失败: %v", err)
		return err
	}

	hm.config = headerConfig.ToHeader()

	hm.loaded = true

	if len(hm.config) > 0 {
		utils.Debugf("成功加载%d个HTTP头部配置: %s", len(hm.config), hm.redactor.RedactToString(hm.config))
	}

	return nil
}

// headerLayer 一层头部及其来源名称
type headerLayer struct {
	source  string
	headers http.Header
}

// layers 按优先级从低到高返回各层头部
func (hm *HeaderManager) layers() []headerLayer {
	return []headerLayer{
		{source: "默认", headers: hm.defaults},
		{source: "配置文件", headers: hm.config},
		{source: "命令行", headers: hm.cli},
	}
}

// Validate 逐层验证头部, 返回第一个错误
func (hm *HeaderManager) Validate() error {
	for _, layer := range hm.layers() {
		if err := hm.validator.Validate(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.source, err)
			return err
		}
	}
	utils.Debugf("所有HTTP头部验证通过")
	return nil
}

// ValidateAll 验证全部头部并汇总所有错误, 用于 --validate-config
func (hm *HeaderManager) ValidateAll() error {
	var errs []error
	for _, layer := range hm.layers() {
		if err := hm.validator.ValidateAll(layer.headers); err != nil {
			errs = append(errs, fmt.Errorf("%s头部: %w", layer.source, err))
		}
	}
	return errors.Join(errs...)
}

// GetMergedHeaders 合并各层头部, 高优先级整体覆盖同名头部
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range hm.layers() {
		for name, values := range layer.headers {
			result[http.CanonicalHeaderKey(name)] = values
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// UserAgent 返回生效的User-Agent (robots.txt匹配使用)
func (hm *HeaderManager) UserAgent() string {
	return hm.GetMergedHeaders().Get("User-Agent")
}

// GetHeaders 实现 HeaderProvider 接口
// 第一次调用时加载并验证, 之后返回缓存结果的副本
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.merged != nil {
		return hm.merged.Clone(), nil
	}

	if err := hm.loadLocked(); err != nil {
		return nil, err
	}

	if err := hm.Validate(); err != nil {
		return nil, err
	}

	hm.merged = hm.GetMergedHeaders()
	return hm.merged.Clone(), nil
}
