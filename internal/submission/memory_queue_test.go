package submission

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

func TestMemoryQueueClosedQueueStopsDelivery(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queue := NewMemoryQueue(4)
	for _, id := range []string{"sub-1", "sub-2"} {
		if err := queue.Publish(ctx, id); err != nil {
			t.Fatalf("入队失败: %v", err)
		}
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("关闭队列失败: %v", err)
	}

	var handled atomic.Int64
	err := queue.Consume(ctx, 2, func(ctx context.Context, submissionID string) error {
		handled.Add(1)
		return nil
	})
	if err == nil {
		t.Fatal("期望关闭队列后 Consume 返回错误")
	}
	if got := handled.Load(); got != 0 {
		t.Fatalf("关闭后仍有 %d 条消息被投递给处理函数", got)
	}
	if err := queue.Publish(ctx, "sub-3"); err == nil {
		t.Fatal("期望关闭后入队失败")
	}
}

func TestMemoryQueueRequeuesRetryableFailures(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queue := NewMemoryQueue(4)
	defer queue.Close()
	if err := queue.Publish(ctx, "sub-retry"); err != nil {
		t.Fatalf("入队失败: %v", err)
	}

	var attempts atomic.Int64
	succeeded := make(chan struct{})
	go func() {
		_ = queue.Consume(ctx, 1, func(ctx context.Context, submissionID string) error {
			if attempts.Add(1) == 1 {
				return xerrors.New(xerrors.CodeStorageFailure, "存储暂不可用")
			}
			close(succeeded)
			return nil
		})
	}()

	select {
	case <-succeeded:
	case <-ctx.Done():
		t.Fatal("可重试失败未被重新投递")
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("处理次数 = %d, 期望 2", got)
	}
}

func TestMemoryQueueDropsTerminalFailures(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queue := NewMemoryQueue(4)
	defer queue.Close()
	if err := queue.Publish(ctx, "sub-fatal"); err != nil {
		t.Fatalf("入队失败: %v", err)
	}

	var attempts atomic.Int64
	delivered := make(chan struct{}, 4)
	go func() {
		_ = queue.Consume(ctx, 1, func(ctx context.Context, submissionID string) error {
			attempts.Add(1)
			delivered <- struct{}{}
			return xerrors.New(xerrors.CodeTransportFault, "钱包代理拒绝请求")
		})
	}()

	select {
	case <-delivered:
	case <-ctx.Done():
		t.Fatal("消息未被投递")
	}
	select {
	case <-delivered:
		t.Fatal("不可重试的失败不应被重新投递")
	case <-time.After(100 * time.Millisecond):
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("处理次数 = %d, 期望 1", got)
	}
}

func TestMemoryQueueConsumeReturnsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	queue := NewMemoryQueue(1)
	defer queue.Close()

	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(ctx, 2, func(ctx context.Context, submissionID string) error { return nil })
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Consume 返回 %v, 期望 context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("取消后 Consume 未退出")
	}
}
