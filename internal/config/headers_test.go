package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/PageCapture/internal/models"
)

func TestHeaderConfigLoader_LoadConfig(t *testing.T) {
	t.Run("首次运行自动生成配置文件", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "sub", "headers.yaml")
		loader := NewHeaderConfigLoader(configPath)

		cfg, err := loader.LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("配置文件应该被自动生成: %v", err)
		}
		if cfg.Headers == nil {
			t.Fatal("Headers map应该被初始化")
		}
		if cfg.CookieHeader() != "" {
			t.Errorf("模板不应包含Cookie, 实际 %q", cfg.CookieHeader())
		}
	})

	tests := []struct {
		name      string
		content   string
		headers   map[string]string
		cookie    string
		expectErr bool
	}{
		{
			name:    "加载头部 (viper键名小写)",
			content: "headers:\n  User-Agent: \"Test Bot/1.0\"\n  X-Custom: \"test value\"\n",
			headers: map[string]string{"user-agent": "Test Bot/1.0", "x-custom": "test value"},
		},
		{
			name:    "Cookie列表保留大小写",
			content: "cookies:\n  - \"SessionID=abc\"\n  - \" lang=zh \"\n",
			headers: map[string]string{},
			cookie:  "SessionID=abc; lang=zh",
		},
		{
			name:    "空配置",
			content: "headers:",
			headers: map[string]string{},
		},
		{
			name:      "YAML格式错误",
			content:   "headers:\n  User-Agent: \"Test Bot\n  X-Custom: missing quote\n",
			expectErr: true,
		},
		{
			name:      "Cookie缺少等号",
			content:   "cookies:\n  - \"broken\"\n",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "headers.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("写入测试配置失败: %v", err)
			}

			cfg, err := NewHeaderConfigLoader(configPath).LoadConfig()
			if tt.expectErr {
				var ce *models.ConfigError
				if !errors.As(err, &ce) {
					t.Fatalf("期望 ConfigError, 实际 %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("加载配置失败: %v", err)
			}
			for k, v := range tt.headers {
				if cfg.Headers[k] != v {
					t.Errorf("期望 %s=%q, 实际 %q", k, v, cfg.Headers[k])
				}
			}
			if got := cfg.CookieHeader(); got != tt.cookie {
				t.Errorf("期望Cookie %q, 实际 %q", tt.cookie, got)
			}
		})
	}

	t.Run("配置文件大小验证", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		if err := os.WriteFile(configPath, make([]byte, MaxConfigFileSize+1), 0644); err != nil {
			t.Fatalf("写入大配置失败: %v", err)
		}
		if _, err := NewHeaderConfigLoader(configPath).LoadConfig(); err == nil {
			t.Fatal("期望超大配置文件被拒绝,但成功了")
		}
	})
}

func TestNewHeaderConfigLoader_DefaultPath(t *testing.T) {
	if got := NewHeaderConfigLoader("").ConfigPath(); got != DefaultConfigFile {
		t.Errorf("期望默认路径 %s, 实际 %s", DefaultConfigFile, got)
	}
}
