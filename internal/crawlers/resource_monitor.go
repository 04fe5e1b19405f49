package crawlers

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 根据可用内存和CPU负载给出下载并发数的上限
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 采样函数, 测试时可替换
	sampleMemory func() (total, available uint64, err error)
	sampleCPU    func() (float64, error)

	cacheMu       sync.Mutex
	cachedWorkers int
	cachedFor     int
	lastCacheTime time.Time
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	SafetyThreshold     int64 // 安全阈值(字节)
	CPULoadThreshold    int   // CPU负载阈值(%), >=200 表示不检查
	MaxWorkersLimit     int   // 绝对最大并发数, 0表示不限制
	WorkerMemoryUsage   int64 // 单个下载协程的内存估计(字节)
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64 // 系统总内存(字节)
	AvailableMemory int64  // 扣除保留后的可用内存(字节)
	SafetyReserve   int64  // 安全保留内存(字节)
	SafetyThreshold int64  // 安全阈值(字节)
	MemoryPressure  string // 内存压力等级
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.WorkerMemoryUsage <= 0 {
		config.WorkerMemoryUsage = 32 * 1024 * 1024 // 32MB
	}
	return &ResourceMonitor{
		config:       config,
		sampleMemory: systemMemory,
		sampleCPU:    systemCPU,
	}
}

func systemMemory() (uint64, uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vm.Total, vm.Available, nil
}

// systemCPU 使用gopsutil采样100毫秒内所有核心的平均使用率
func systemCPU() (float64, error) {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return percentages[0], nil
}

// CalculateMaxWorkers 在requested的基础上按资源状况给出并发上限
// 结果每秒最多重新计算一次, 至少为1
func (rm *ResourceMonitor) CalculateMaxWorkers(requested int) int {
	if requested < 1 {
		requested = 1
	}

	rm.cacheMu.Lock()
	if rm.cachedFor == requested && time.Since(rm.lastCacheTime) < time.Second && rm.cachedWorkers > 0 {
		cached := rm.cachedWorkers
		rm.cacheMu.Unlock()
		return cached
	}
	rm.cacheMu.Unlock()

	result := requested

	status, err := rm.GetMemoryStatus()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败, 不调整并发数")
	} else {
		byMemory := 1
		if status.AvailableMemory > rm.config.SafetyThreshold {
			byMemory = int((status.AvailableMemory - rm.config.SafetyThreshold) / rm.config.WorkerMemoryUsage)
			if byMemory < 1 {
				byMemory = 1
			}
		}
		if byMemory < result {
			log.Warn().Msgf("可用内存不足(当前%dMB), 并发数限制为%d", status.AvailableMemory/(1024*1024), byMemory)
			result = byMemory
		}
	}

	if limit := runtime.NumCPU() * 4; limit < result {
		result = limit
	}
	if rm.config.MaxWorkersLimit > 0 && rm.config.MaxWorkersLimit < result {
		result = rm.config.MaxWorkersLimit
	}

	if rm.config.CPULoadThreshold > 0 && rm.config.CPULoadThreshold < 200 {
		if usage, err := rm.sampleCPU(); err == nil && usage > float64(rm.config.CPULoadThreshold) {
			log.Warn().Msgf("CPU负载过高(当前%.1f%%), 并发数减半", usage)
			result /= 2
		}
	}

	if result < 1 {
		result = 1
	}

	rm.cacheMu.Lock()
	rm.cachedWorkers = result
	rm.cachedFor = requested
	rm.lastCacheTime = time.Now()
	rm.cacheMu.Unlock()

	return result
}

// GetMemoryStatus 获取当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() (MemoryStatus, error) {
	total, available, err := rm.sampleMemory()
	if err != nil {
		return MemoryStatus{}, err
	}
	availableMemory := int64(available) - rm.config.SafetyReserveMemory

	var pressure string
	availableMemoryMB := availableMemory / (1024 * 1024)
	switch {
	case availableMemoryMB < 200:
		pressure = "emergency"
	case availableMemoryMB < 300:
		pressure = "critical"
	case availableMemoryMB < 500:
		pressure = "warning"
	default:
		pressure = "normal"
	}

	return MemoryStatus{
		TotalMemory:     total,
		AvailableMemory: availableMemory,
		SafetyReserve:   rm.config.SafetyReserveMemory,
		SafetyThreshold: rm.config.SafetyThreshold,
		MemoryPressure:  pressure,
	}, nil
}
