package wallet

import (
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

// EncodeCallData packs a function invocation into raw call data using the
// provided ABI description. Failures are caller-input problems and carry the
// ENCODING_FAILURE code without further translation downstream.
func EncodeCallData(abiJSON, function string, args []any) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err, "解析 ABI 失败")
	}
	method, ok := parsed.Methods[function]
	if !ok {
		return nil, xerrors.New(xerrors.CodeEncodingFailure,
			"ABI 中不存在函数 "+function, xerrors.WithMetadata("function", function))
	}
	coerced, err := coerceArgs(method.Inputs, args)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(function, coerced...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err,
			"编码调用数据失败", xerrors.WithMetadata("function", function))
	}
	return data, nil
}

// coerceArgs converts loosely typed arguments (typically decoded from JSON,
// where every number is a float64 and every address a string) into the Go
// values abi.Pack expects for the declared input types. Arguments that are
// already the right type pass through untouched.
func coerceArgs(inputs abi.Arguments, args []any) ([]any, error) {
	if len(args) != len(inputs) {
		return nil, xerrors.New(xerrors.CodeEncodingFailure, "参数数量与 ABI 不匹配")
	}
	coerced := make([]any, len(args))
	for i, arg := range args {
		value, err := coerceArg(inputs[i].Type, arg)
		if err != nil {
			return nil, err
		}
		coerced[i] = value
	}
	return coerced, nil
}

func coerceArg(t abi.Type, arg any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		if s, ok := arg.(string); ok {
			if !common.IsHexAddress(s) {
				return nil, xerrors.New(xerrors.CodeEncodingFailure, "地址参数非法: "+s)
			}
			return common.HexToAddress(s), nil
		}
	case abi.UintTy, abi.IntTy:
		switch v := arg.(type) {
		case string:
			digits, base := v, 10
			if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
				digits, base = v[2:], 16
			}
			n, ok := new(big.Int).SetString(digits, base)
			if !ok {
				return nil, xerrors.New(xerrors.CodeEncodingFailure, "整数参数无法解析: "+v)
			}
			return normalizeInt(t, n), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, xerrors.New(xerrors.CodeEncodingFailure, "整数参数不能带小数")
			}
			// 经 big.Float 中转保留 int64 放不下的大数值。
			n, _ := new(big.Float).SetFloat64(v).Int(nil)
			return normalizeInt(t, n), nil
		}
	case abi.BoolTy:
		if v, ok := arg.(bool); ok {
			return v, nil
		}
	case abi.StringTy:
		if v, ok := arg.(string); ok {
			return v, nil
		}
	case abi.BytesTy:
		if v, ok := arg.(string); ok {
			data, err := hexutil.Decode(v)
			if err != nil {
				return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err, "bytes 参数不是合法的十六进制")
			}
			return data, nil
		}
	}
	return arg, nil
}

// normalizeInt 把小位宽整数转换为 abi 包期望的原生类型。
func normalizeInt(t abi.Type, n *big.Int) any {
	if t.T == abi.UintTy {
		switch t.Size {
		case 8:
			return uint8(n.Uint64())
		case 16:
			return uint16(n.Uint64())
		case 32:
			return uint32(n.Uint64())
		case 64:
			return n.Uint64()
		}
		return n
	}
	switch t.Size {
	case 8:
		return int8(n.Int64())
	case 16:
		return int16(n.Int64())
	case 32:
		return int32(n.Int64())
	case 64:
		return n.Int64()
	}
	return n
}
