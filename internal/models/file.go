package models

import (
	"encoding/json"
	"time"
)

// FileKind 保存文件的种类
type FileKind string

const (
	KindPage     FileKind = "page"
	KindResource FileKind = "resource"
)

// SavedFile 已保存到磁盘的文件
type SavedFile struct {
	URL         string    `json:"url"`          // 源URL
	FilePath    string    `json:"file_path"`    // 本地路径
	Kind        FileKind  `json:"kind"`         // page/resource
	ContentType string    `json:"content_type"` // HTTP Content-Type
	Size        int64     `json:"size"`         // 文件大小(字节)
	OwnerURL    string    `json:"owner_url,omitempty"`
	SavedAt     time.Time `json:"saved_at"`
}

// ToJSON 序列化为JSON
func (f *SavedFile) ToJSON() ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// FailedFile 失败记录
type FailedFile struct {
	URL       string `json:"url"`
	ErrorType string `json:"error_type"` // timeout, fetch_error, io_error, cancelled
	ErrorMsg  string `json:"error_msg"`
}
