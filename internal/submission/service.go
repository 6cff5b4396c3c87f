package submission

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mr-kenikh/viem/internal/chain"
	xerrors "github.com/mr-kenikh/viem/internal/errors"
	"github.com/mr-kenikh/viem/pkg/logger"
)

// SubmitRequest 描述一次批量调用提交。
type SubmitRequest struct {
	ID           string         `json:"id,omitempty"`
	Account      string         `json:"account,omitempty"`
	Chain        string         `json:"chain,omitempty"`
	Calls        []CallSpec     `json:"calls"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Version      string         `json:"version,omitempty"`
}

// Service 负责提交记录的创建与查询。
type Service struct {
	store    Store
	producer Producer
	registry *chain.Registry
}

// NewService 构造提交服务。
func NewService(store Store, producer Producer, registry *chain.Registry) *Service {
	return &Service{store: store, producer: producer, registry: registry}
}

// Submit 校验批量调用并将记录推入队列。校验在入队前完成，
// 使得明显畸形的请求不会占用派发流水线。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "提交服务未初始化")
	}
	if len(req.Calls) == 0 {
		return nil, xerrors.New(CodeSubmissionValidation, "批量调用不能为空")
	}
	if req.Chain != "" && s.registry != nil {
		if _, ok := s.registry.Chain(req.Chain); !ok {
			return nil, xerrors.New(xerrors.CodeChainMissing, "未知的链标识",
				xerrors.WithMetadata("chain", req.Chain))
		}
	}
	if _, err := buildCalls(req.Calls, s.registry); err != nil {
		return nil, xerrors.Wrap(CodeSubmissionValidation, err, "批量调用校验失败")
	}

	submissionID := strings.TrimSpace(req.ID)
	if submissionID != "" {
		existing, err := s.store.Get(ctx, submissionID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrSubmissionNotFound) {
			return nil, err
		}
	} else {
		submissionID = uuid.NewString()
	}

	sub := &Submission{
		ID:           submissionID,
		Account:      strings.TrimSpace(req.Account),
		Chain:        req.Chain,
		Calls:        req.Calls,
		Capabilities: cloneCapabilities(req.Capabilities),
		Version:      req.Version,
		Status:       StatusPending,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		if stdErrors.Is(err, ErrSubmissionConflict) {
			existing, getErr := s.store.Get(ctx, submissionID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrSubmissionNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, submissionID); err != nil {
		logger.L().Error("提交入队失败", slog.Any("error", err), slog.String("submission_id", submissionID))
		wrapped := xerrors.Wrap(CodeSubmissionPublish, err, "发布提交到队列失败")
		_ = s.store.MarkFailed(ctx, submissionID, string(CodeSubmissionPublish), wrapped.Error())
		return nil, wrapped
	}
	logger.Audit().Info("提交入队成功",
		slog.String("submission_id", submissionID),
		slog.String("account", sub.Account),
		slog.String("chain", sub.Chain),
		slog.Int("call_count", len(sub.Calls)),
	)
	return sub, nil
}

// Get 返回指定提交的状态。
func (s *Service) Get(ctx context.Context, id string) (*Submission, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "提交存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回最近的提交记录。
func (s *Service) List(ctx context.Context, limit int) ([]*Submission, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "提交存储未初始化")
	}
	return s.store.List(ctx, limit)
}

// Close 释放资源。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}
