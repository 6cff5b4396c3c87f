package submission

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/mr-kenikh/viem/internal/chain"
	xerrors "github.com/mr-kenikh/viem/internal/errors"
	"github.com/mr-kenikh/viem/internal/observability/alerting"
	"github.com/mr-kenikh/viem/internal/wallet"
	"github.com/mr-kenikh/viem/pkg/logger"
)

// Dispatcher 定义了处理器向钱包代理派发批量调用所需的能力。
type Dispatcher interface {
	SendCalls(ctx context.Context, params wallet.SendCallsParams) (string, error)
}

// Processor 负责从队列消费提交记录并把批量调用派发给钱包代理。
// 派发失败是终态：一条记录只会被派发一次，不做自动重试。
type Processor struct {
	dispatcher  Dispatcher
	store       Store
	consumer    Consumer
	registry    *chain.Registry
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(dispatcher Dispatcher, store Store, consumer Consumer, registry *chain.Registry, opts ...ProcessorOption) *Processor {
	p := &Processor{
		dispatcher:  dispatcher,
		store:       store,
		consumer:    consumer,
		registry:    registry,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动消费循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置提交消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, submissionID string) error {
	if p.store == nil || p.dispatcher == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	sub, err := p.store.Claim(ctx, submissionID)
	if err != nil {
		if stdErrors.Is(err, ErrSubmissionNotFound) || stdErrors.Is(err, ErrSubmissionCompleted) || stdErrors.Is(err, ErrSubmissionConflict) {
			p.logDebug("跳过提交", slog.String("submission_id", submissionID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取提交记录失败", slog.Any("error", err), slog.String("submission_id", submissionID))
		return err
	}

	params, buildErr := p.params(sub)
	if buildErr != nil {
		return p.recordFailure(ctx, sub, buildErr)
	}

	batchID, dispatchErr := p.dispatcher.SendCalls(ctx, params)
	if dispatchErr != nil {
		return p.recordFailure(ctx, sub, dispatchErr)
	}

	if err := p.store.MarkSucceeded(ctx, sub.ID, batchID); err != nil {
		logger.L().Error("标记提交成功状态失败", slog.Any("error", err),
			slog.String("submission_id", sub.ID), slog.String("batch_id", batchID))
		return err
	}
	logger.Audit().Info("批量调用派发成功",
		slog.String("submission_id", sub.ID),
		slog.String("batch_id", batchID),
		slog.String("account", sub.Account),
		slog.Int("call_count", len(sub.Calls)),
	)
	return nil
}

// params 把持久化记录还原为核心层的派发参数。
func (p *Processor) params(sub *Submission) (wallet.SendCallsParams, error) {
	calls, err := buildCalls(sub.Calls, p.registry)
	if err != nil {
		return wallet.SendCallsParams{}, err
	}
	params := wallet.SendCallsParams{
		Account:      sub.Account,
		Calls:        calls,
		Capabilities: cloneCapabilities(sub.Capabilities),
		Version:      sub.Version,
	}
	if sub.Chain != "" {
		ch, ok := p.registry.Chain(sub.Chain)
		if !ok {
			return wallet.SendCallsParams{}, xerrors.New(xerrors.CodeChainMissing,
				"未知的链标识", xerrors.WithMetadata("chain", sub.Chain))
		}
		params.Chain = ch
	}
	return params, nil
}

// recordFailure 把失败写入存储并广播告警。返回 nil 以阻止队列重放：
// 失败是终态，重放只会在 Claim 处碰到冲突。
func (p *Processor) recordFailure(ctx context.Context, sub *Submission, cause error) error {
	code := xerrors.CodeOf(cause)
	if code == xerrors.CodeUnknown {
		code = CodeSubmissionProcessing
	}
	if storeErr := p.store.MarkFailed(ctx, sub.ID, string(code), cause.Error()); storeErr != nil {
		logger.L().Error("标记提交失败状态出错", slog.Any("error", storeErr), slog.String("submission_id", sub.ID))
		return storeErr
	}
	logger.Audit().Warn("批量调用派发失败",
		slog.String("submission_id", sub.ID),
		slog.String("account", sub.Account),
		slog.String("error", cause.Error()),
		slog.String("error_code", string(code)),
	)
	p.emitAlert(ctx, sub, code, cause)
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, sub *Submission, code xerrors.Code, cause error) {
	if p == nil || p.alerter == nil || sub == nil {
		return
	}
	if !xerrors.ShouldAlert(cause) && !xerrors.AttributesOf(code).Alert {
		return
	}
	metadata := map[string]string{}
	if wrapped, ok := xerrors.From(cause); ok {
		for k, v := range wrapped.Metadata() {
			metadata[k] = v
		}
	}
	event := alerting.Event{
		Code:         code,
		Message:      cause.Error(),
		Severity:     xerrors.SeverityOf(cause),
		SubmissionID: sub.ID,
		Account:      sub.Account,
		Chain:        sub.Chain,
		Metadata:     metadata,
		OccurredAt:   time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Warn("发送告警失败", slog.Any("error", err), slog.String("submission_id", sub.ID))
	}
}
