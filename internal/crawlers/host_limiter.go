package crawlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter 按主机限制请求速率
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
	burst    int
}

// NewHostLimiter 创建限速器, requestsPerSecond<=0 时不限速(返回nil)
func NewHostLimiter(requestsPerSecond float64, burst int) *HostLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: time.Duration(float64(time.Second) / requestsPerSecond),
		burst:    burst,
	}
}

// Wait 等待主机的下一个令牌, nil限速器直接返回
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || host == "" {
		return nil
	}
	return l.limiter(host).Wait(ctx)
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), l.burst)
		l.limiters[host] = lim
	}
	return lim
}
