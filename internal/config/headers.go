package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigFile 默认头部配置文件路径
	DefaultConfigFile = "configs/headers.yaml"

	// UserConfigFile 用户目录下的头部配置 (相对 $HOME)
	UserConfigFile = ".pagecapture/headers.yaml"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

//go:embed headers_template.yaml
var defaultHeaderTemplate string

// HeaderConfigLoader 头部配置文件加载器
// 未显式指定路径时依次查找 configs/headers.yaml 和 ~/.pagecapture/headers.yaml,
// 都不存在则在 configs/ 下生成模板
type HeaderConfigLoader struct {
	configPath string
	explicit   bool
}

// NewHeaderConfigLoader 创建加载器, configPath为空时使用默认查找顺序
func NewHeaderConfigLoader(configPath string) *HeaderConfigLoader {
	if configPath == "" {
		return &HeaderConfigLoader{configPath: DefaultConfigFile}
	}
	return &HeaderConfigLoader{configPath: configPath, explicit: true}
}

// ConfigPath 返回配置文件路径
func (hcl *HeaderConfigLoader) ConfigPath() string {
	return hcl.configPath
}

// resolve 确定实际使用的配置文件, 必要时生成模板
func (hcl *HeaderConfigLoader) resolve() (string, error) {
	candidates := []string{hcl.configPath}
	if !hcl.explicit {
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, UserConfigFile))
		}
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(hcl.configPath), 0755); err != nil {
		return "", fmt.Errorf("无法创建配置目录 [%s]: %w", filepath.Dir(hcl.configPath), err)
	}
	if err := os.WriteFile(hcl.configPath, []byte(defaultHeaderTemplate), 0644); err != nil {
		return "", fmt.Errorf("无法生成配置文件 [%s]: %w", hcl.configPath, err)
	}
	utils.Infof("📝 已生成头部配置模板: %s", hcl.configPath)
	return hcl.configPath, nil
}

// readLimited 读取文件内容, 超过大小限制返回 ConfigError
func readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取配置文件信息 [%s]: %w", path, err)
	}
	if info.Size() > MaxConfigFileSize {
		return nil, &models.ConfigError{
			FilePath: path,
			Cause:    fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxConfigFileSize),
		}
	}
	return os.ReadFile(path)
}

// LoadConfig 加载并解析头部配置
func (hcl *HeaderConfigLoader) LoadConfig() (*models.HeaderConfig, error) {
	path, err := hcl.resolve()
	if err != nil {
		return nil, err
	}
	hcl.configPath = path

	data, err := readLimited(path)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}

	var config models.HeaderConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: fmt.Errorf("配置绑定失败: %w", err)}
	}
	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}

	for i, cookie := range config.Cookies {
		if !strings.Contains(cookie, "=") {
			return nil, &models.ConfigError{
				FilePath: path,
				Cause:    fmt.Errorf("第%d个cookie格式错误, 应为 'name=value': %q", i+1, cookie),
			}
		}
	}

	utils.Debugf("已加载头部配置 [%s]: %d个头部, %d个cookie", path, len(config.Headers), len(config.Cookies))
	return &config, nil
}
