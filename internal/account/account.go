package account

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

// Account 表示一次批量调用的发起账户。
type Account struct {
	Address common.Address
	Label   string
}

// Resolver 负责把账户引用（地址或命名句柄）解析为具体账户。
type Resolver interface {
	Resolve(ref string) (*Account, error)
}

// StaticResolver 基于配置表解析账户，同时接受裸的十六进制地址。
type StaticResolver struct {
	accounts map[string]*Account
}

// NewStaticResolver 创建 StaticResolver。labels 的键为账户句柄。
func NewStaticResolver(labels map[string]string) (*StaticResolver, error) {
	accounts := make(map[string]*Account, len(labels))
	for label, addr := range labels {
		trimmed := strings.TrimSpace(addr)
		if !common.IsHexAddress(trimmed) {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "账户 "+label+" 的地址非法")
		}
		accounts[label] = &Account{Address: common.HexToAddress(trimmed), Label: label}
	}
	return &StaticResolver{accounts: accounts}, nil
}

// Resolve 实现 Resolver。未知句柄且不是合法地址时返回 ACCOUNT_MISSING。
func (r *StaticResolver) Resolve(ref string) (*Account, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, xerrors.New(xerrors.CodeAccountMissing, "账户引用为空")
	}
	if r != nil {
		if acct, ok := r.accounts[ref]; ok {
			clone := *acct
			return &clone, nil
		}
	}
	if common.IsHexAddress(ref) {
		return &Account{Address: common.HexToAddress(ref)}, nil
	}
	return nil, xerrors.New(xerrors.CodeAccountMissing, "未找到账户 "+ref)
}
