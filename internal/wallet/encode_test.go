package wallet

import (
	"bytes"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

func TestEncodeCallDataCoercesJSONArgs(t *testing.T) {
	t.Parallel()

	recipient := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	typed, err := EncodeCallData(erc20TransferABI, "transfer", []any{recipient, big.NewInt(1000)})
	if err != nil {
		t.Fatalf("encode typed args: %v", err)
	}

	// JSON 反序列化后地址是字符串、数值是字符串或 float64。
	cases := [][]any{
		{"0x70997970C51812dc3A010C7d01b50e0d17dc79C8", "1000"},
		{"0x70997970C51812dc3A010C7d01b50e0d17dc79C8", "0x3e8"},
		{"0x70997970C51812dc3A010C7d01b50e0d17dc79C8", float64(1000)},
	}
	for _, args := range cases {
		loose, err := EncodeCallData(erc20TransferABI, "transfer", args)
		if err != nil {
			t.Fatalf("encode loose args %v: %v", args, err)
		}
		if !bytes.Equal(typed, loose) {
			t.Fatalf("宽松参数 %v 的编码结果与原生类型不一致", args)
		}
	}
}

func TestEncodeCallDataLargeFloatKeepsPrecision(t *testing.T) {
	t.Parallel()

	// 2^64 超出 int64 表示范围，但作为 float64 是精确值。
	amount := new(big.Int).Lsh(big.NewInt(1), 64)
	typed, err := EncodeCallData(erc20TransferABI, "transfer",
		[]any{common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), amount})
	if err != nil {
		t.Fatalf("encode typed args: %v", err)
	}

	loose, err := EncodeCallData(erc20TransferABI, "transfer",
		[]any{"0x70997970C51812dc3A010C7d01b50e0d17dc79C8", math.Exp2(64)})
	if err != nil {
		t.Fatalf("encode float64 arg: %v", err)
	}
	if !bytes.Equal(typed, loose) {
		t.Fatalf("大数值 float64 参数的编码结果与 big.Int 不一致")
	}
}

func TestEncodeCallDataRejectsBadArgs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		args []any
	}{
		{"地址非法", []any{"not-an-address", "1000"}},
		{"参数数量不符", []any{"0x70997970C51812dc3A010C7d01b50e0d17dc79C8"}},
		{"带小数的整数", []any{"0x70997970C51812dc3A010C7d01b50e0d17dc79C8", 10.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := EncodeCallData(erc20TransferABI, "transfer", tc.args)
			if xerrors.CodeOf(err) != xerrors.CodeEncodingFailure {
				t.Fatalf("期望 ENCODING_FAILURE，实际: %v", err)
			}
		})
	}
}

func TestEncodeCallDataUnknownFunction(t *testing.T) {
	t.Parallel()

	_, err := EncodeCallData(erc20TransferABI, "mint", nil)
	if xerrors.CodeOf(err) != xerrors.CodeEncodingFailure {
		t.Fatalf("未知函数应返回 ENCODING_FAILURE，实际: %v", err)
	}
}
