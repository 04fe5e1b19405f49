package crawlers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorage_StaysInsideBase(t *testing.T) {
	base := t.TempDir()
	storage := NewFileStorage(filepath.Join(base, "out"))

	tests := []struct {
		name      string
		path      string
		expectErr bool
	}{
		{name: "普通相对路径", path: "T/references/logo.png"},
		{name: "目录内的..", path: "T/../index.html"},
		{name: "越出输出目录", path: "../escape.txt", expectErr: true},
		{name: "多级越界", path: "T/../../escape.txt", expectErr: true},
		{name: "绝对路径", path: filepath.Join(base, "abs.txt"), expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storage.WriteFile(tt.path, []byte("x"))
			if tt.expectErr {
				if !errors.Is(err, ErrOutsideBase) {
					t.Fatalf("期望 ErrOutsideBase, 实际 %v", err)
				}
				if storage.Exists(tt.path) {
					t.Errorf("越界路径不应被视为存在")
				}
				return
			}
			if err != nil {
				t.Fatalf("写入失败: %v", err)
			}
			if !storage.Exists(tt.path) {
				t.Errorf("文件应存在: %s", tt.path)
			}
		})
	}

	for _, name := range []string{"escape.txt", "abs.txt"} {
		if _, err := os.Stat(filepath.Join(base, name)); err == nil {
			t.Errorf("输出目录之外不应写入文件: %s", name)
		}
	}
	if got := storage.Abs("../escape.txt"); got != filepath.Join(base, "out", "escape.txt") {
		t.Errorf("Abs应截掉越界部分, 实际 %s", got)
	}
}

func TestFileStorage_NonConflictingPath(t *testing.T) {
	storage := NewFileStorage(t.TempDir())
	for _, p := range []string{"a.html", "a_1.html"} {
		if err := storage.Create(p); err != nil {
			t.Fatalf("创建文件失败: %v", err)
		}
	}
	if got := storage.NonConflictingPath("a.html"); got != "a_2.html" {
		t.Errorf("期望 a_2.html, 实际 %s", got)
	}
	if got := storage.NonConflictingPath("b.html"); got != "b.html" {
		t.Errorf("期望 b.html, 实际 %s", got)
	}
}
