package wallet

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/mr-kenikh/viem/internal/account"
	"github.com/mr-kenikh/viem/internal/chain"
	xerrors "github.com/mr-kenikh/viem/internal/errors"
	"github.com/mr-kenikh/viem/pkg/logger"
)

// DefaultVersion is the protocol version sent when the caller does not
// specify one.
const DefaultVersion = "1.0"

// BatchRequest is the resolved, caller-invariant envelope submitted to the
// agent. It is assembled fresh per invocation and never mutated afterwards.
type BatchRequest struct {
	Calls        []NormalizedCall `json:"calls"`
	Capabilities map[string]any   `json:"capabilities,omitempty"`
	ChainID      string           `json:"chainId"`
	From         string           `json:"from"`
	Version      string           `json:"version"`
}

// Defaults holds the ambient account and chain applied when a call to
// SendCalls does not specify them explicitly. It replaces any hidden shared
// client state: what is not in here or in the params does not exist.
type Defaults struct {
	Account string
	Chain   *chain.Chain
}

// Sender drives the full pipeline: parameter resolution, call
// normalization, envelope assembly and dispatch.
type Sender struct {
	agent    Agent
	resolver account.Resolver
	defaults Defaults
	logger   *slog.Logger
}

// SenderOption 定义可选的 Sender 配置。
type SenderOption func(*Sender)

// WithDefaults 设置默认账户与默认链。
func WithDefaults(defaults Defaults) SenderOption {
	return func(s *Sender) {
		s.defaults = defaults
	}
}

// WithSenderLogger 指定日志输出。
func WithSenderLogger(log *slog.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = log
	}
}

// NewSender 创建 Sender。
func NewSender(agent Agent, resolver account.Resolver, opts ...SenderOption) *Sender {
	s := &Sender{agent: agent, resolver: resolver}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("wallet")
	}
	return s
}

// SendCallsParams carries one batch invocation.
type SendCallsParams struct {
	Account      string
	Chain        *chain.Chain
	Calls        []Call
	Capabilities map[string]any
	Version      string
}

// SendCalls normalizes the calls, assembles the batch envelope and submits
// it through the agent exactly once. It either returns the agent's batch
// identifier or fails with a single descriptive error; there is no partial
// result.
func (s *Sender) SendCalls(ctx context.Context, p SendCallsParams) (string, error) {
	if s == nil || s.agent == nil || s.resolver == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "Sender 未初始化")
	}

	// 参数解析：账户缺失必须在任何归一化动作之前失败。
	ref := strings.TrimSpace(p.Account)
	if ref == "" {
		ref = strings.TrimSpace(s.defaults.Account)
	}
	if ref == "" {
		return "", xerrors.New(xerrors.CodeAccountMissing, "未指定账户，且没有默认账户")
	}
	acct, err := s.resolver.Resolve(ref)
	if err != nil {
		return "", err
	}

	batchChain := p.Chain
	if batchChain == nil {
		batchChain = s.defaults.Chain
	}

	normalized, err := normalizeCalls(p.Calls, batchChain)
	if err != nil {
		return "", err
	}

	chainHex, err := batchChainID(batchChain, normalized)
	if err != nil {
		return "", err
	}

	version := strings.TrimSpace(p.Version)
	if version == "" {
		version = DefaultVersion
	}

	req := &BatchRequest{
		Calls:        normalized,
		Capabilities: p.Capabilities,
		ChainID:      chainHex,
		From:         acct.Address.Hex(),
		Version:      version,
	}

	// 不自动重试：重复提交一批改变状态的调用可能造成重复的资金操作。
	identifier, err := s.agent.Request(ctx, req, RequestOptions{RetryCount: 0})
	if err != nil {
		translated := translateDispatchError(err, req)
		s.logger.Error("批量调用投递失败",
			slog.Any("error", translated),
			slog.String("from", req.From),
			slog.String("chain_id", req.ChainID),
		)
		return "", translated
	}

	logger.Audit().Info("批量调用已提交",
		slog.String("batch_id", identifier),
		slog.String("from", req.From),
		slog.String("chain_id", req.ChainID),
		slog.Int("calls", len(req.Calls)),
		slog.String("version", req.Version),
	)
	return identifier, nil
}

// batchChainID picks the envelope-level chain id: the batch default when one
// exists, otherwise the chain of the first normalized call. With no calls
// and no default there is nothing to send to.
func batchChainID(batchChain *chain.Chain, normalized []NormalizedCall) (string, error) {
	if batchChain != nil {
		return EncodeQuantity(batchChain.ID)
	}
	if len(normalized) > 0 {
		return normalized[0].ChainID, nil
	}
	return "", xerrors.New(xerrors.CodeChainMissing, "批次层面无法确定链 id")
}

// translateDispatchError re-wraps an agent failure into a transaction error
// carrying the fully resolved invocation context for diagnostics. The
// underlying cause stays reachable through errors.Unwrap.
func translateDispatchError(cause error, req *BatchRequest) error {
	opts := []xerrors.Option{
		xerrors.WithMetadata("from", req.From),
		xerrors.WithMetadata("chain_id", req.ChainID),
		xerrors.WithMetadata("calls", strconv.Itoa(len(req.Calls))),
		xerrors.WithMetadata("version", req.Version),
	}
	if len(req.Capabilities) > 0 {
		keys := make([]string, 0, len(req.Capabilities))
		for key := range req.Capabilities {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		opts = append(opts, xerrors.WithMetadata("capabilities", strings.Join(keys, ",")))
	}
	return xerrors.Wrap(xerrors.CodeTransportFault, cause, "提交批量调用失败", opts...)
}
