package submission

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

// MemoryStore 以内存方式保存提交记录，主要用于测试与单机部署。
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]*Submission
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{submissions: make(map[string]*Submission)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, sub *Submission) error {
	if sub == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "submission 不能为空")
	}
	if sub.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "提交 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[sub.ID]; ok {
		return ErrSubmissionConflict
	}
	now := time.Now().Unix()
	if sub.CreatedAt == 0 {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	m.submissions[sub.ID] = cloneSubmission(sub)
	return nil
}

// Get 返回提交记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.submissions[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	return cloneSubmission(sub), nil
}

// Claim 把待投递的记录标记为投递中。已经离开 pending 状态的记录一律
// 拒绝：批量调用只允许一次投递尝试。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	switch sub.Status {
	case StatusSucceeded:
		return cloneSubmission(sub), ErrSubmissionCompleted
	case StatusDispatching, StatusFailed:
		return cloneSubmission(sub), ErrSubmissionConflict
	}
	sub.Status = StatusDispatching
	sub.UpdatedAt = time.Now().Unix()
	return cloneSubmission(sub), nil
}

// MarkSucceeded 记录钱包返回的批次标识。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return ErrSubmissionNotFound
	}
	sub.Status = StatusSucceeded
	sub.BatchID = batchID
	sub.LastError = ""
	sub.ErrorCode = ""
	sub.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记投递失败。失败是终态，不会再次投递。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return ErrSubmissionNotFound
	}
	sub.Status = StatusFailed
	sub.LastError = lastError
	sub.ErrorCode = code
	sub.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回最近的提交记录，按更新时间倒序。
func (m *MemoryStore) List(_ context.Context, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Submission, 0, len(m.submissions))
	for _, sub := range m.submissions {
		results = append(results, cloneSubmission(sub))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].UpdatedAt == results[j].UpdatedAt {
			return results[i].ID < results[j].ID
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
