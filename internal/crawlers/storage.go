package crawlers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideBase 路径不在输出目录内
var ErrOutsideBase = errors.New("路径超出输出目录")

// FileStorage 本地文件存储, 所有路径都相对输出目录, 不允许越出
type FileStorage struct {
	BasePath string
}

// NewFileStorage 创建存储, basePath为输出目录
func NewFileStorage(basePath string) *FileStorage {
	return &FileStorage{BasePath: basePath}
}

// resolve 把相对路径转为输出目录下的完整路径
// 绝对路径和以 .. 越出输出目录的路径返回 ErrOutsideBase
func (s *FileStorage) resolve(rel string) (string, error) {
	if rel == "" || rel == "." {
		return s.BasePath, nil
	}
	if filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, rel)
	}
	return filepath.Join(s.BasePath, rel), nil
}

// Abs 把相对输出目录的路径转为完整路径, 越界部分被截掉
func (s *FileStorage) Abs(rel string) string {
	if path, err := s.resolve(rel); err == nil {
		return path
	}
	return filepath.Join(s.BasePath, filepath.Clean(string(filepath.Separator)+rel))
}

// Open 打开文件, 需要时创建父目录
func (s *FileStorage) Open(path string, flag int) (io.ReadWriteCloser, error) {
	path, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if flag&os.O_CREATE != 0 {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建目录失败: %w", err)
		}
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	return f, nil
}

// Create 创建空文件(占位)
func (s *FileStorage) Create(path string) error {
	f, err := s.Open(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	return f.Close()
}

// WriteFile 写入整个文件
func (s *FileStorage) WriteFile(path string, data []byte) error {
	path, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}

// ReadFile 读取整个文件
func (s *FileStorage) ReadFile(path string) ([]byte, error) {
	path, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Rename 重命名文件
func (s *FileStorage) Rename(from, to string) error {
	src, err := s.resolve(from)
	if err != nil {
		return err
	}
	dst, err := s.resolve(to)
	if err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// Remove 删除文件
func (s *FileStorage) Remove(path string) error {
	path, err := s.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// MkdirAll 创建目录
func (s *FileStorage) MkdirAll(dir string) error {
	dir, err := s.resolve(dir)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// Exists 文件是否存在
func (s *FileStorage) Exists(path string) bool {
	path, err := s.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// NonConflictingPath 返回一个不存在的路径
// 已存在时在扩展名前追加 _1, _2 ...
func (s *FileStorage) NonConflictingPath(path string) string {
	if !s.Exists(path) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !s.Exists(candidate) {
			return candidate
		}
	}
}
