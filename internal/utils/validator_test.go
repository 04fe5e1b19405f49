package utils

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/RecoveryAshes/PageCapture/internal/models"
)

func TestHeaderValidator_ValidateName(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		expectError bool
	}{
		{"合法名称-字母", "User-Agent", false},
		{"合法名称-数字", "X-Request-ID-123", false},
		{"非法名称-空格", "User Agent", true},
		{"非法名称-下划线", "User_Agent", true},
		{"非法名称-空字符串", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateName(tt.headerName)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderValidator_ValidateHeader(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		headerValue string
		expectError bool
	}{
		{"合法头部", "User-Agent", "Mozilla/5.0", false},
		{"合法Cookie", "Cookie", "sid=abc; theme=dark", false},
		{"Cookie缺少等号", "Cookie", "sid=abc; broken", true},
		{"禁止头部-Host", "Host", "example.com", true},
		{"禁止头部-不区分大小写", "host", "example.com", true},
		{"禁止头部-Range", "Range", "bytes=0-100", true},
		{"禁止头部-条件请求", "If-None-Match", "\"abc\"", true},
		{"非法值-控制字符", "User-Agent", "value\x00bad", true},
		{"非法值-超长", "X-Long", strings.Repeat("a", MaxHeaderValueLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateHeader(tt.headerName, tt.headerValue)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
			var ve *models.ValidationError
			if err != nil && !errors.As(err, &ve) {
				t.Errorf("期望 ValidationError, 实际 %T", err)
			}
		})
	}
}

func TestHeaderValidator_ValidateAll(t *testing.T) {
	validator := NewHeaderValidator()

	headers := http.Header{
		"User-Agent": []string{"Mozilla/5.0"},
		"Host":       []string{"example.com"},
		"Range":      []string{"bytes=0-1"},
	}

	if err := validator.Validate(headers); err == nil || !strings.Contains(err.Error(), "Host") {
		t.Errorf("Validate 应按名称顺序返回第一个错误, 实际 %v", err)
	}

	err := validator.ValidateAll(headers)
	if err == nil {
		t.Fatal("期望返回错误, 但无错误")
	}
	for _, name := range []string{"Host", "Range"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("错误信息应包含 %s: %v", name, err)
		}
	}

	if err := validator.ValidateAll(http.Header{"Accept": []string{"*/*"}}); err != nil {
		t.Errorf("期望无错误, 实际错误=%v", err)
	}
}
