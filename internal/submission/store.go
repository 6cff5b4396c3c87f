package submission

import "context"

// Store 抽象了提交记录的持久化接口。一条记录只允许被投递一次：
// Claim 仅能把 pending 状态迁移到 dispatching。
type Store interface {
	Create(ctx context.Context, sub *Submission) error
	Get(ctx context.Context, id string) (*Submission, error)
	Claim(ctx context.Context, id string) (*Submission, error)
	MarkSucceeded(ctx context.Context, id string, batchID string) error
	MarkFailed(ctx context.Context, id string, code string, lastError string) error
	List(ctx context.Context, limit int) ([]*Submission, error)
	Close() error
}
