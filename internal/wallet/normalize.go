package wallet

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mr-kenikh/viem/internal/chain"
	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

// NormalizedCall is the wire form of a single call. Optional fields stay
// absent when the source call left them out; an absent value is never
// coerced to "0x0".
type NormalizedCall struct {
	ChainID string `json:"chainId"`
	Data    string `json:"data,omitempty"`
	To      string `json:"to,omitempty"`
	Value   string `json:"value,omitempty"`
}

// normalizeCalls maps every input call to exactly one normalized call,
// preserving index order. The first failure aborts the whole batch; no
// partial output is ever returned.
func normalizeCalls(calls []Call, batchChain *chain.Chain) ([]NormalizedCall, error) {
	normalized := make([]NormalizedCall, 0, len(calls))
	for i, call := range calls {
		nc, err := normalizeCall(call, batchChain)
		if err != nil {
			if xe, ok := xerrors.From(err); ok && xe.Code() == xerrors.CodeChainMissing {
				return nil, xerrors.New(xerrors.CodeChainMissing,
					"第 "+strconv.Itoa(i)+" 个调用无法解析链 id",
					xerrors.WithMetadata("call_index", strconv.Itoa(i)))
			}
			return nil, err
		}
		normalized = append(normalized, nc)
	}
	return normalized, nil
}

// normalizeCall derives the wire form of one call.
func normalizeCall(call Call, batchChain *chain.Chain) (NormalizedCall, error) {
	id := call.effectiveChainID(batchChain)
	if id == nil {
		return NormalizedCall{}, xerrors.New(xerrors.CodeChainMissing, "")
	}
	chainHex, err := EncodeQuantity(id)
	if err != nil {
		return NormalizedCall{}, err
	}

	data := call.data
	if call.kind == kindStructured {
		// 编码失败原样向上传播，这里不做二次转换。
		data, err = EncodeCallData(call.abiJSON, call.function, call.args)
		if err != nil {
			return NormalizedCall{}, err
		}
	}

	nc := NormalizedCall{ChainID: chainHex}
	if len(data) > 0 {
		nc.Data = hexutil.Encode(data)
	}
	if call.to != nil {
		nc.To = call.to.Hex()
	}
	if call.value != nil {
		valueHex, err := EncodeQuantity(call.value)
		if err != nil {
			return NormalizedCall{}, err
		}
		nc.Value = valueHex
	}
	return nc, nil
}
