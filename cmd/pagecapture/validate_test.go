package main

import (
	"testing"

	"github.com/spf13/cobra"
)

// newFlagCommand 复用根命令的参数定义 (Flag对象共享, 用例结束后需恢复)
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().AddFlagSet(rootCmd.Flags())
	return cmd
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		file        string
		set         map[string]string
		expectError bool
	}{
		{name: "合法URL", url: "https://example.com"},
		{name: "本地文件URL", url: "file:///tmp/index.html"},
		{name: "不支持的协议", url: "ftp://example.com", expectError: true},
		{name: "URL和文件同时指定", url: "https://example.com", file: "urls.txt", expectError: true},
		{name: "深度不限制", url: "https://example.com", set: map[string]string{"depth": "-1"}},
		{name: "深度非法", url: "https://example.com", set: map[string]string{"depth": "-2"}, expectError: true},
		{name: "并发数过大", url: "https://example.com", set: map[string]string{"threads": "65"}, expectError: true},
		{name: "未知过滤器", url: "https://example.com", set: map[string]string{"filter": "images"}, expectError: true},
		{name: "重试次数过多", url: "https://example.com", set: map[string]string{"retries": "11"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targetURL, urlFile = tt.url, tt.file
			selectedURLs = nil
			defer func() {
				// 恢复默认值供后续用例使用
				for _, name := range []string{"depth", "threads", "filter", "retries"} {
					f := rootCmd.Flags().Lookup(name)
					f.Value.Set(f.DefValue)
					f.Changed = false
				}
			}()

			cmd := newFlagCommand()
			for name, value := range tt.set {
				if err := cmd.Flags().Set(name, value); err != nil {
					t.Fatalf("设置参数 %s 失败: %v", name, err)
				}
			}

			err := ValidateFlags(cmd)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestCollectCLIFlags(t *testing.T) {
	cmd := newFlagCommand()
	defer func() {
		for _, name := range []string{"depth", "render"} {
			f := rootCmd.Flags().Lookup(name)
			f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}()

	if err := cmd.Flags().Set("depth", "3"); err != nil {
		t.Fatalf("设置参数失败: %v", err)
	}
	if err := cmd.Flags().Set("render", "true"); err != nil {
		t.Fatalf("设置参数失败: %v", err)
	}

	f := collectCLIFlags(cmd)
	if f.MaxDepth == nil || *f.MaxDepth != 3 {
		t.Errorf("期望深度3, 实际 %v", f.MaxDepth)
	}
	if f.Render == nil || !*f.Render {
		t.Error("期望启用渲染")
	}
	if f.Workers != nil || f.DownloadFilter != nil {
		t.Error("未指定的参数应为nil")
	}
}
