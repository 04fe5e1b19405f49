package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/PageCapture/internal/models"
)

func TestDownloadQueue_RunsAllJobs(t *testing.T) {
	var handled atomic.Int64
	var running, peak atomic.Int64

	q := NewDownloadQueue(3, false, func(ctx context.Context, job *models.DownloadJob) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		handled.Add(1)
		return nil
	})

	for i := 0; i < 20; i++ {
		if err := q.Enqueue(&models.DownloadJob{URL: fmt.Sprintf("http://example.com/%d.png", i)}); err != nil {
			t.Fatalf("入队失败: %v", err)
		}
	}
	if err := q.Execute(context.Background()); err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	if handled.Load() != 20 {
		t.Errorf("期望处理20个任务, 实际 %d", handled.Load())
	}
	if peak.Load() > 3 {
		t.Errorf("并发数不应超过3, 实际 %d", peak.Load())
	}
	if err := q.Enqueue(&models.DownloadJob{URL: "late"}); !errors.Is(err, ErrQueueStarted) {
		t.Errorf("开始执行后入队应返回 ErrQueueStarted, 实际 %v", err)
	}
}

func TestDownloadQueue_Failures(t *testing.T) {
	boom := errors.New("boom")
	handler := func(ctx context.Context, job *models.DownloadJob) error {
		if job.URL == "bad" {
			return boom
		}
		return nil
	}

	tests := []struct {
		name          string
		throw         bool
		expectErr     bool
		expectRecords int
	}{
		{name: "记录错误并继续", throw: false, expectErr: false, expectRecords: 1},
		{name: "首个错误即中止", throw: true, expectErr: true, expectRecords: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewDownloadQueue(1, tt.throw, handler)
			for _, u := range []string{"ok1", "bad", "ok2"} {
				q.Enqueue(&models.DownloadJob{URL: u})
			}

			err := q.Execute(context.Background())
			if tt.expectErr != (err != nil) {
				t.Errorf("期望错误=%v, 实际 %v", tt.expectErr, err)
			}
			if tt.expectErr && !errors.Is(err, boom) {
				t.Errorf("期望返回任务错误, 实际 %v", err)
			}
			if len(q.Errors()) != tt.expectRecords {
				t.Errorf("期望记录 %d 个错误, 实际 %d", tt.expectRecords, len(q.Errors()))
			}
		})
	}
}

func TestDownloadQueue_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var handled atomic.Int64

	q := NewDownloadQueue(1, false, func(ctx context.Context, job *models.DownloadJob) error {
		if handled.Add(1) == 2 {
			cancel()
		}
		return nil
	})
	for i := 0; i < 10; i++ {
		q.Enqueue(&models.DownloadJob{URL: fmt.Sprint(i)})
	}

	err := q.Execute(ctx)
	if !models.IsCancelled(err) {
		t.Fatalf("期望 ErrCaptureCancelled, 实际 %v", err)
	}
	if handled.Load() != 2 {
		t.Errorf("取消后不应再处理任务, 实际处理 %d 个", handled.Load())
	}
}

func TestDownloadQueue_ProgressCancel(t *testing.T) {
	q := NewDownloadQueue(2, false, func(ctx context.Context, job *models.DownloadJob) error {
		t.Errorf("已请求取消时不应处理任务")
		return nil
	})
	q.Enqueue(&models.DownloadJob{URL: "a", Progress: cancelledProgress{}})

	if err := q.Execute(context.Background()); !models.IsCancelled(err) {
		t.Errorf("期望 ErrCaptureCancelled, 实际 %v", err)
	}
}
