package utils

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
)

// ConsoleProgress 控制台进度条, 实现 models.ProgressSink
// Cancel 可以从信号处理协程调用
type ConsoleProgress struct {
	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	max       int
	cancelled atomic.Bool
}

// NewConsoleProgress 创建进度条, w为nil时输出到stderr
func NewConsoleProgress(w io.Writer, description string) *ConsoleProgress {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgress{
		bar: NewProgressBar(100, description,
			progressbar.OptionSetWriter(w),
			progressbar.OptionClearOnFinish(),
		),
		max: 100,
	}
}

// Update 实现ProgressSink
func (p *ConsoleProgress) Update(completed, total int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if total > 0 && total != p.max {
		p.max = total
		p.bar.ChangeMax(total)
	}
	if completed > p.max {
		completed = p.max
	}
	if message != "" {
		p.bar.Describe(message)
	}
	_ = p.bar.Set(completed)
}

// CancelRequested 实现ProgressSink
func (p *ConsoleProgress) CancelRequested() bool {
	return p.cancelled.Load()
}

// Cancel 请求取消, 抓取在下一个检查点停止
func (p *ConsoleProgress) Cancel() {
	p.cancelled.Store(true)
}

// Finish 结束进度条
func (p *ConsoleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}
