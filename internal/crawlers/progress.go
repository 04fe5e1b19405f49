package crawlers

import (
	"sync/atomic"

	"github.com/RecoveryAshes/PageCapture/internal/models"
)

// 各阶段占总进度的百分比
const (
	discoveryWeight = 20
	downloadWeight  = 60
	emitWeight      = 20
)

// PhaseProgress 把一个阶段的进度映射到父进度的 [start, start+span) 百分比区间
type PhaseProgress struct {
	parent models.ProgressSink
	start  int
	span   int
}

// NewPhaseProgress 创建阶段进度
func NewPhaseProgress(parent models.ProgressSink, start, span int) *PhaseProgress {
	if parent == nil {
		parent = models.SilentProgress{}
	}
	return &PhaseProgress{parent: parent, start: start, span: span}
}

// Update 实现ProgressSink
func (p *PhaseProgress) Update(completed, total int, message string) {
	pct := p.start
	if total > 0 {
		if completed > total {
			completed = total
		}
		pct += p.span * completed / total
	}
	p.parent.Update(pct, 100, message)
}

// CancelRequested 实现ProgressSink
func (p *PhaseProgress) CancelRequested() bool {
	return p.parent.CancelRequested()
}

// JointProgress 多个任务共享的进度, 每个任务一个份额
// 任务份额完成时父进度加一, 总进度是各份额之和
type JointProgress struct {
	parent models.ProgressSink
	total  int
	done   atomic.Int64
}

// NewJointProgress 创建共享进度, total为份额数
func NewJointProgress(parent models.ProgressSink, total int) *JointProgress {
	if parent == nil {
		parent = models.SilentProgress{}
	}
	return &JointProgress{parent: parent, total: total}
}

// Slot 返回一个任务份额
func (j *JointProgress) Slot() models.ProgressSink {
	return &jointSlot{joint: j}
}

// Completed 已完成的份额数
func (j *JointProgress) Completed() int {
	return int(j.done.Load())
}

type jointSlot struct {
	joint    *JointProgress
	finished atomic.Bool
}

// Update 份额完成(completed>=total)时计入父进度, 重复完成只计一次
func (s *jointSlot) Update(completed, total int, message string) {
	if total <= 0 || completed < total {
		return
	}
	if s.finished.CompareAndSwap(false, true) {
		n := s.joint.done.Add(1)
		s.joint.parent.Update(int(n), s.joint.total, message)
	}
}

func (s *jointSlot) CancelRequested() bool {
	return s.joint.parent.CancelRequested()
}
