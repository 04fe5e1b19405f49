package core

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func writeHeadersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "headers.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入头部配置失败: %v", err)
	}
	return path
}

func TestHeaderManager_GetMergedHeaders(t *testing.T) {
	configPath := writeHeadersFile(t, `headers:
  X-Config: "from-config"
  User-Agent: "ConfigBot/1.0"
`)

	tests := []struct {
		name     string
		cli      []string
		header   string
		expected string
	}{
		{name: "默认头部", cli: nil, header: "Accept-Encoding", expected: "gzip, deflate, br"},
		{name: "配置覆盖默认", cli: nil, header: "User-Agent", expected: "ConfigBot/1.0"},
		{name: "命令行覆盖配置", cli: []string{"User-Agent: CliBot/1.0"}, header: "User-Agent", expected: "CliBot/1.0"},
		{name: "配置独有头部", cli: []string{"X-Other: 1"}, header: "X-Config", expected: "from-config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm, err := NewHeaderManager(configPath, tt.cli)
			if err != nil {
				t.Fatalf("创建HeaderManager失败: %v", err)
			}
			if err := hm.LoadConfig(); err != nil {
				t.Fatalf("加载配置失败: %v", err)
			}
			if got := hm.GetMergedHeaders().Get(tt.header); got != tt.expected {
				t.Errorf("期望 %s=%q, 实际 %q", tt.header, tt.expected, got)
			}
		})
	}
}

func TestHeaderManager_Cookies(t *testing.T) {
	configPath := writeHeadersFile(t, `cookies:
  - "SessionID=abc123"
  - "theme=dark"
`)

	hm, err := NewHeaderManager(configPath, nil)
	if err != nil {
		t.Fatalf("创建HeaderManager失败: %v", err)
	}
	headers, err := hm.GetHeaders()
	if err != nil {
		t.Fatalf("GetHeaders失败: %v", err)
	}
	if got := headers.Get("Cookie"); got != "SessionID=abc123; theme=dark" {
		t.Errorf("Cookie合并错误, 实际 %q", got)
	}

	safe := hm.GetSafeHeaders()
	if safe["Cookie"] != "SessionID=***; theme=***" {
		t.Errorf("Cookie应被脱敏, 实际 %q", safe["Cookie"])
	}
}

func TestHeaderManager_GetHeaders(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "headers.yaml")

	t.Run("非法命令行参数返回错误", func(t *testing.T) {
		if _, err := NewHeaderManager(configPath, []string{"InvalidFormat"}); err == nil {
			t.Error("期望返回错误, 但成功了")
		}
	})

	t.Run("禁止头部返回验证错误", func(t *testing.T) {
		hm, err := NewHeaderManager(configPath, []string{"Range: bytes=0-10"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}
		if _, err := hm.GetHeaders(); err == nil {
			t.Error("期望返回验证错误, 但成功了")
		}
	})

	t.Run("配置文件不存在时自动生成", func(t *testing.T) {
		hm, err := NewHeaderManager(configPath, []string{"X-Custom: test-value"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}
		headers, err := hm.GetHeaders()
		if err != nil {
			t.Fatalf("GetHeaders失败: %v", err)
		}
		if headers.Get("X-Custom") != "test-value" {
			t.Error("X-Custom未正确设置")
		}
		if _, err := os.Stat(configPath); err != nil {
			t.Errorf("配置模板未生成: %v", err)
		}
	})

	t.Run("并发调用返回独立副本", func(t *testing.T) {
		hm, err := NewHeaderManager(configPath, nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				headers, err := hm.GetHeaders()
				if err != nil {
					t.Errorf("GetHeaders失败: %v", err)
					return
				}
				headers.Set("X-Mutated", "1")
			}()
		}
		wg.Wait()

		headers, _ := hm.GetHeaders()
		if headers.Get("X-Mutated") != "" {
			t.Error("调用方的修改不应影响缓存")
		}
	})
}

func TestHeaderManager_ValidateAll(t *testing.T) {
	configPath := writeHeadersFile(t, `headers:
  Host: "evil.example.com"
`)
	hm, err := NewHeaderManager(configPath, []string{"Bad_Name: 1"})
	if err != nil {
		t.Fatalf("创建HeaderManager失败: %v", err)
	}
	if err := hm.LoadConfig(); err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	err = hm.ValidateAll()
	if err == nil {
		t.Fatal("期望验证失败,但成功了")
	}
	for _, want := range []string{"配置文件头部", "命令行头部"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("错误信息应包含 %q, 实际 %v", want, err)
		}
	}
}
