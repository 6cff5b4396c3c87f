package submission

import (
	"context"
	"errors"
	"sync"

	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

var errMemoryQueueClosed = errors.New("内存队列已关闭")

// MemoryQueue 基于 channel 的进程内队列，用于测试与单机部署。它遵循
// 与 Redis 队列相同的投递契约：只有基础设施层面的可重试失败会把提交
// ID 放回队尾，派发结果一律以存储中的状态为准。
type MemoryQueue struct {
	ch   chan string
	done chan struct{}
	once sync.Once
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size), done: make(chan struct{})}
}

// Publish 将提交 ID 投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, submissionID string) error {
	select {
	case <-q.done:
		return errMemoryQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- submissionID:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费队列。队列关闭后剩余消息不再投递
// 给处理函数，未派发的提交以存储中的 pending 状态兜底。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case submissionID := <-q.ch:
					select {
					case <-q.done:
						return
					default:
					}
					if err := handler(ctx, submissionID); err != nil && xerrors.RetryableError(err) {
						q.requeue(submissionID)
					}
				}
			}
		}()
	}
	wg.Wait()
	select {
	case <-q.done:
		return errMemoryQueueClosed
	default:
	}
	return ctx.Err()
}

// requeue 把可重试失败的提交放回队尾。队列已满或已关闭时直接丢弃，
// 该提交保持 pending 状态等待人工处置。
func (q *MemoryQueue) requeue(submissionID string) {
	select {
	case <-q.done:
	case q.ch <- submissionID:
	default:
	}
}

// Close 关闭内存队列。重复关闭是安全的。
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
