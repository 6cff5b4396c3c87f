package submission

import (
	"context"
	"errors"
	"testing"

	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

type failingProducer struct {
	err error
}

func (p *failingProducer) Publish(context.Context, string) error { return p.err }
func (p *failingProducer) Close() error                          { return nil }

func TestServiceSubmitValidatesEagerly(t *testing.T) {
	ctx := context.Background()
	service := NewService(NewMemoryStore(), NewMemoryQueue(8), testRegistry(t))

	if _, err := service.Submit(ctx, SubmitRequest{}); xerrors.CodeOf(err) != CodeSubmissionValidation {
		t.Fatalf("空批次应被拒绝，实际 %v", err)
	}

	_, err := service.Submit(ctx, SubmitRequest{
		Chain: "arbitrum",
		Calls: []CallSpec{{To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"}},
	})
	if xerrors.CodeOf(err) != xerrors.CodeChainMissing {
		t.Fatalf("未知链应被拒绝，实际 %v", err)
	}

	_, err = service.Submit(ctx, SubmitRequest{
		Calls: []CallSpec{{
			To:       "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			Data:     "0xdeadbeef",
			Function: "transfer",
		}},
	})
	if xerrors.CodeOf(err) != CodeSubmissionValidation {
		t.Fatalf("混合形态的调用应被拒绝，实际 %v", err)
	}
}

func TestServiceSubmitIsIdempotentOnClientID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	service := NewService(store, NewMemoryQueue(8), testRegistry(t))

	req := SubmitRequest{
		ID:      "client-chosen",
		Account: "treasury",
		Calls:   []CallSpec{{To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Value: "1"}},
	}
	first, err := service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("首次提交失败: %v", err)
	}
	second, err := service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("重复提交失败: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("重复提交返回了不同记录: %s vs %s", first.ID, second.ID)
	}

	subs, err := service.List(ctx, 10)
	if err != nil {
		t.Fatalf("查询列表失败: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("重复提交产生了多条记录: %d", len(subs))
	}
}

func TestServiceSubmitGeneratesIDs(t *testing.T) {
	ctx := context.Background()
	service := NewService(NewMemoryStore(), NewMemoryQueue(8), testRegistry(t))

	sub, err := service.Submit(ctx, SubmitRequest{
		Calls: []CallSpec{{To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"}},
	})
	if err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	if sub.ID == "" {
		t.Fatal("服务应为提交生成唯一 ID")
	}
	if sub.Status != StatusPending {
		t.Fatalf("新提交应处于 pending 状态，实际 %s", sub.Status)
	}
}

func TestServiceSubmitMarksFailedOnPublishError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	producer := &failingProducer{err: errors.New("broker down")}
	service := NewService(store, producer, testRegistry(t))

	_, err := service.Submit(ctx, SubmitRequest{
		ID:    "stuck",
		Calls: []CallSpec{{To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"}},
	})
	if xerrors.CodeOf(err) != CodeSubmissionPublish {
		t.Fatalf("入队失败应返回发布错误，实际 %v", err)
	}

	stored, getErr := store.Get(ctx, "stuck")
	if getErr != nil {
		t.Fatalf("查询提交失败: %v", getErr)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("入队失败的记录应落库为失败: %+v", stored)
	}
}
