package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/PageCapture/internal/models"
	"github.com/RecoveryAshes/PageCapture/internal/utils"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers 默认下载并发数
const DefaultWorkers = 2

var (
	// ErrQueueStarted 队列开始执行后不再接受任务
	ErrQueueStarted = errors.New("下载队列已开始执行")
)

// JobHandler 处理单个下载任务
type JobHandler func(ctx context.Context, job *models.DownloadJob) error

// DownloadQueue 固定数量工作协程的下载队列
// 任务全部入队后调用 Execute, 各协程从共享队列中取任务直到取空
type DownloadQueue struct {
	workers        int
	throwOnFailure bool
	handler        JobHandler

	mu      sync.Mutex
	jobs    []*models.DownloadJob
	next    int
	started bool
	errs    []error
}

// NewDownloadQueue 创建下载队列
func NewDownloadQueue(workers int, throwOnFailure bool, handler JobHandler) *DownloadQueue {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &DownloadQueue{
		workers:        workers,
		throwOnFailure: throwOnFailure,
		handler:        handler,
	}
}

// Enqueue 添加任务
func (q *DownloadQueue) Enqueue(job *models.DownloadJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return ErrQueueStarted
	}
	if job.Progress == nil {
		job.Progress = models.SilentProgress{}
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// Len 队列中的任务总数
func (q *DownloadQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Errors 返回记录的非致命错误
func (q *DownloadQueue) Errors() []error {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]error, len(q.errs))
	copy(out, q.errs)
	return out
}

// Execute 启动工作协程并等待全部结束
// 取消总是返回 ErrCaptureCancelled; throwOnFailure 时返回首个任务错误,
// 否则任务错误只记录到 Errors()
func (q *DownloadQueue) Execute(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrQueueStarted
	}
	q.started = true
	total := len(q.jobs)
	q.mu.Unlock()

	if total == 0 {
		return nil
	}

	workers := q.workers
	if workers > total {
		workers = total
	}
	utils.Debugf("下载队列开始: %d 个任务, %d 个工作协程", total, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return q.work(ctx, gctx)
		})
	}
	err := g.Wait()

	if ctx.Err() != nil && !models.IsCancelled(err) {
		return fmt.Errorf("%w: %v", models.ErrCaptureCancelled, ctx.Err())
	}
	return err
}

// work 单个工作协程, 在任务之间检查取消
func (q *DownloadQueue) work(parent, gctx context.Context) error {
	for {
		if parent.Err() != nil {
			return models.ErrCaptureCancelled
		}
		if gctx.Err() != nil {
			// 其他协程已失败
			return nil
		}

		job := q.pop()
		if job == nil {
			return nil
		}
		if job.Progress.CancelRequested() {
			return models.ErrCaptureCancelled
		}

		if err := q.handler(gctx, job); err != nil {
			if models.IsCancelled(err) {
				return err
			}
			if parent.Err() != nil {
				return models.ErrCaptureCancelled
			}
			utils.Warnf("下载失败 [%s]: %v", job.URL, err)
			if q.throwOnFailure {
				return err
			}
			q.record(err)
		}
	}
}

func (q *DownloadQueue) pop() *models.DownloadJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.next >= len(q.jobs) {
		return nil
	}
	job := q.jobs[q.next]
	q.next++
	return job
}

func (q *DownloadQueue) record(err error) {
	q.mu.Lock()
	q.errs = append(q.errs, err)
	q.mu.Unlock()
}
