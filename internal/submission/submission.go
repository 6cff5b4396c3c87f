package submission

import (
	stdErrors "errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mr-kenikh/viem/internal/chain"
	xerrors "github.com/mr-kenikh/viem/internal/errors"
	"github.com/mr-kenikh/viem/internal/wallet"
)

// Status 表示提交记录在生命周期中的状态。
type Status string

const (
	StatusPending     Status = "pending"
	StatusDispatching Status = "dispatching"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
)

// CallSpec 是 API 层接受的单个调用描述。原始形态使用 To/Data/Value，
// 结构化形态使用 ABI/Function/Args；两种形态的标识字段不允许混填。
type CallSpec struct {
	To       string `json:"to,omitempty"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	ABI      string `json:"abi,omitempty"`
	Function string `json:"function,omitempty"`
	Args     []any  `json:"args,omitempty"`
	Chain    string `json:"chain,omitempty"`
	ChainID  uint64 `json:"chain_id,omitempty"`
}

// Submission 描述了一次排队等待投递的批量调用。
type Submission struct {
	ID           string         `json:"id"`
	Account      string         `json:"account,omitempty"`
	Chain        string         `json:"chain,omitempty"`
	Calls        []CallSpec     `json:"calls"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Version      string         `json:"version,omitempty"`
	Status       Status         `json:"status"`
	BatchID      string         `json:"batch_id,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
}

var (
	// ErrSubmissionNotFound 表示指定的提交记录不存在。
	ErrSubmissionNotFound = xerrors.New(CodeSubmissionNotFound, "submission not found")
	// ErrSubmissionConflict 表示记录在当前状态下无法进行所请求的操作。
	ErrSubmissionConflict = xerrors.New(CodeSubmissionConflict, "submission conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrSubmissionCompleted 表示记录已经投递完成。
	ErrSubmissionCompleted = xerrors.New(CodeSubmissionCompleted, "submission already dispatched", xerrors.WithSeverity(xerrors.SeverityInfo))
)

const (
	CodeSubmissionNotFound   xerrors.Code = "SUBMISSION_NOT_FOUND"
	CodeSubmissionConflict   xerrors.Code = "SUBMISSION_CONFLICT"
	CodeSubmissionCompleted  xerrors.Code = "SUBMISSION_COMPLETED"
	CodeSubmissionValidation xerrors.Code = "SUBMISSION_VALIDATION_FAILED"
	CodeSubmissionPublish    xerrors.Code = "SUBMISSION_PUBLISH_FAILED"
	CodeSubmissionProcessing xerrors.Code = "SUBMISSION_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeSubmissionNotFound, xerrors.Attributes{
		Message:  "submission not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeSubmissionConflict, xerrors.Attributes{
		Message:  "submission conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeSubmissionCompleted, xerrors.Attributes{
		Message:  "submission already dispatched",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeSubmissionValidation, xerrors.Attributes{
		Message:  "submission validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeSubmissionPublish, xerrors.Attributes{
		Message:   "failed to publish submission",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeSubmissionProcessing, xerrors.Attributes{
		Message:  "failed to process submission",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
}

// IsValidStatus 检查给定状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusDispatching, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

// build 将一个 CallSpec 转换为核心调用。命名链通过注册表解析。
func (s CallSpec) build(registry *chain.Registry) (wallet.Call, error) {
	structured := s.ABI != "" || s.Function != "" || len(s.Args) > 0
	if structured && s.Data != "" {
		return wallet.Call{}, xerrors.New(CodeSubmissionValidation, "调用不能同时携带 data 与 ABI 描述")
	}

	var opts []wallet.CallOption
	if s.Chain != "" {
		if registry == nil {
			return wallet.Call{}, xerrors.New(CodeSubmissionValidation, "未配置链注册表，无法解析链 "+s.Chain)
		}
		descriptor, ok := registry.Chain(s.Chain)
		if !ok {
			return wallet.Call{}, xerrors.New(xerrors.CodeChainMissing, "未知的链 "+s.Chain)
		}
		opts = append(opts, wallet.OnChain(descriptor))
	}
	if s.ChainID != 0 {
		opts = append(opts, wallet.OnChainID(s.ChainID))
	}

	value, err := parseQuantity(s.Value)
	if err != nil {
		return wallet.Call{}, err
	}

	if structured {
		if !common.IsHexAddress(s.To) {
			return wallet.Call{}, xerrors.New(CodeSubmissionValidation, "合约调用缺少合法的 to 地址")
		}
		return wallet.NewContractCall(wallet.ContractCall{
			ABI:      s.ABI,
			Function: s.Function,
			Args:     s.Args,
			To:       common.HexToAddress(s.To),
			Value:    value,
		}, opts...)
	}

	raw := wallet.RawCall{Value: value}
	if s.To != "" {
		if !common.IsHexAddress(s.To) {
			return wallet.Call{}, xerrors.New(CodeSubmissionValidation, "to 地址非法: "+s.To)
		}
		to := common.HexToAddress(s.To)
		raw.To = &to
	}
	if s.Data != "" {
		data, err := hexutil.Decode(s.Data)
		if err != nil {
			return wallet.Call{}, xerrors.Wrap(CodeSubmissionValidation, err, "data 字段不是合法的十六进制")
		}
		raw.Data = data
	}
	return wallet.NewRawCall(raw, opts...)
}

// buildCalls 按输入顺序转换全部调用。
func buildCalls(specs []CallSpec, registry *chain.Registry) ([]wallet.Call, error) {
	calls := make([]wallet.Call, 0, len(specs))
	for _, spec := range specs {
		call, err := spec.build(registry)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// parseQuantity 接受十进制或 0x 前缀的十六进制数值。空串表示缺省。
func parseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var n *big.Int
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		n, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return nil, xerrors.New(CodeSubmissionValidation, "数值字段无法解析: "+s)
	}
	if n.Sign() < 0 {
		return nil, xerrors.New(CodeSubmissionValidation, "数值字段不能为负: "+s)
	}
	return n, nil
}

func cloneCapabilities(capabilities map[string]any) map[string]any {
	if capabilities == nil {
		return nil
	}
	cloned := make(map[string]any, len(capabilities))
	for key, value := range capabilities {
		cloned[key] = value
	}
	return cloned
}

func cloneSubmission(sub *Submission) *Submission {
	clone := *sub
	clone.Calls = append([]CallSpec(nil), sub.Calls...)
	clone.Capabilities = cloneCapabilities(sub.Capabilities)
	return &clone
}

// IsSubmissionError 判断错误是否为指定的提交错误码。
func IsSubmissionError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	switch target {
	case CodeSubmissionNotFound:
		return stdErrors.Is(err, ErrSubmissionNotFound)
	case CodeSubmissionConflict:
		return stdErrors.Is(err, ErrSubmissionConflict)
	case CodeSubmissionCompleted:
		return stdErrors.Is(err, ErrSubmissionCompleted)
	default:
		return false
	}
}
