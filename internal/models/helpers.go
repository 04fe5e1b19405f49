package models

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// ValidateURL 验证URL
// 支持 http/https 以及本地 file 协议
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https":
		if parsed.Host == "" {
			return fmt.Errorf("URL必须包含主机名")
		}
	case "file":
		if parsed.Path == "" {
			return fmt.Errorf("file URL必须包含路径")
		}
	default:
		return fmt.Errorf("URL必须是HTTP、HTTPS或FILE协议")
	}
	return nil
}

// generateID 生成唯一ID
func generateID() string {
	return uuid.New().String()
}
