package wallet

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mr-kenikh/viem/internal/chain"
	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

// callKind discriminates the two legal call shapes.
type callKind uint8

const (
	kindRaw callKind = iota + 1
	kindStructured
)

// Call is one unit of work in a batch. It is always built through NewRawCall
// or NewContractCall, so a value can never mix the two shapes.
type Call struct {
	kind callKind

	to    *common.Address
	value *big.Int

	// raw shape
	data []byte

	// structured shape
	abiJSON  string
	function string
	args     []any

	// per-call chain override, at most one of the two
	chain   *chain.Chain
	chainID *big.Int
}

// RawCall describes a call given as raw transaction primitives. Every field
// is optional; a call with only To and Value is a plain value transfer.
type RawCall struct {
	To    *common.Address
	Data  []byte
	Value *big.Int
}

// ContractCall describes a structured contract-function invocation that will
// be encoded into raw call data during normalization.
type ContractCall struct {
	ABI      string
	Function string
	Args     []any
	To       common.Address
	Value    *big.Int
}

// CallOption attaches optional per-call settings.
type CallOption func(*Call)

// OnChain targets the call at a specific chain descriptor.
func OnChain(c *chain.Chain) CallOption {
	return func(call *Call) {
		call.chain = c
	}
}

// OnChainID targets the call at a bare numeric chain id.
func OnChainID(id uint64) CallOption {
	return func(call *Call) {
		call.chainID = new(big.Int).SetUint64(id)
	}
}

// NewRawCall builds a raw-shape call.
func NewRawCall(spec RawCall, opts ...CallOption) (Call, error) {
	call := Call{
		kind:  kindRaw,
		to:    spec.To,
		data:  spec.Data,
		value: spec.Value,
	}
	return finishCall(call, opts)
}

// NewContractCall builds a structured-shape call. The ABI description,
// function name and destination are mandatory for this shape.
func NewContractCall(spec ContractCall, opts ...CallOption) (Call, error) {
	if strings.TrimSpace(spec.ABI) == "" {
		return Call{}, xerrors.New(xerrors.CodeInvalidArgument, "合约调用缺少 ABI 描述")
	}
	if strings.TrimSpace(spec.Function) == "" {
		return Call{}, xerrors.New(xerrors.CodeInvalidArgument, "合约调用缺少函数名")
	}
	to := spec.To
	call := Call{
		kind:     kindStructured,
		to:       &to,
		value:    spec.Value,
		abiJSON:  spec.ABI,
		function: spec.Function,
		args:     spec.Args,
	}
	return finishCall(call, opts)
}

// finishCall applies options and enforces the chain-reference contract:
// a call may name a chain descriptor or a bare chain id, never both.
func finishCall(call Call, opts []CallOption) (Call, error) {
	for _, opt := range opts {
		if opt != nil {
			opt(&call)
		}
	}
	if call.chain != nil && call.chainID != nil {
		return Call{}, xerrors.New(xerrors.CodeInvalidArgument, "链描述与裸链 id 不能同时指定")
	}
	return call, nil
}

// effectiveChainID resolves the chain id for this call: the embedded chain
// descriptor wins, then the bare chain id, then the batch-level default.
// Nil means no level could resolve a chain.
func (c Call) effectiveChainID(batchChain *chain.Chain) *big.Int {
	if c.chain != nil && c.chain.ID != nil {
		return c.chain.ID
	}
	if c.chainID != nil {
		return c.chainID
	}
	if batchChain != nil {
		return batchChain.ID
	}
	return nil
}
