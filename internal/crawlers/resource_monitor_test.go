package crawlers

import (
	"errors"
	"runtime"
	"testing"
)

const mb = 1024 * 1024

func TestResourceMonitor_CalculateMaxWorkers(t *testing.T) {
	cpuLimit := runtime.NumCPU() * 4

	tests := []struct {
		name      string
		available uint64
		cpu       float64
		memErr    error
		config    ResourceMonitorConfig
		requested int
		expected  int
	}{
		{
			name:      "资源充足",
			available: 8192 * mb,
			config:    ResourceMonitorConfig{SafetyThreshold: 512 * mb, WorkerMemoryUsage: 32 * mb},
			requested: 2,
			expected:  2,
		},
		{
			name:      "内存不足时按内存限制",
			available: 640 * mb,
			config:    ResourceMonitorConfig{SafetyThreshold: 512 * mb, WorkerMemoryUsage: 32 * mb},
			requested: 2 * cpuLimit,
			expected:  minInt(4, cpuLimit),
		},
		{
			name:      "低于安全阈值至少为1",
			available: 100 * mb,
			config:    ResourceMonitorConfig{SafetyThreshold: 512 * mb},
			requested: 8,
			expected:  1,
		},
		{
			name:      "绝对上限",
			available: 8192 * mb,
			config:    ResourceMonitorConfig{MaxWorkersLimit: 1},
			requested: 2,
			expected:  1,
		},
		{
			name:      "CPU过载减半",
			available: 8192 * mb,
			cpu:       95,
			config:    ResourceMonitorConfig{CPULoadThreshold: 80, MaxWorkersLimit: 2},
			requested: 2,
			expected:  1,
		},
		{
			name:      "内存读取失败不调整",
			memErr:    errors.New("not supported"),
			config:    ResourceMonitorConfig{},
			requested: 1,
			expected:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := NewResourceMonitor(tt.config)
			rm.sampleMemory = func() (uint64, uint64, error) {
				return 16384 * mb, tt.available, tt.memErr
			}
			rm.sampleCPU = func() (float64, error) { return tt.cpu, nil }

			if got := rm.CalculateMaxWorkers(tt.requested); got != tt.expected {
				t.Errorf("期望 %d, 实际 %d", tt.expected, got)
			}
		})
	}
}

func TestResourceMonitor_MemoryPressure(t *testing.T) {
	tests := []struct {
		available uint64
		expected  string
	}{
		{100 * mb, "emergency"},
		{250 * mb, "critical"},
		{400 * mb, "warning"},
		{2048 * mb, "normal"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			rm := NewResourceMonitor(ResourceMonitorConfig{})
			rm.sampleMemory = func() (uint64, uint64, error) { return 4096 * mb, tt.available, nil }

			status, err := rm.GetMemoryStatus()
			if err != nil {
				t.Fatalf("获取内存状态失败: %v", err)
			}
			if status.MemoryPressure != tt.expected {
				t.Errorf("期望 %s, 实际 %s", tt.expected, status.MemoryPressure)
			}
		})
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
