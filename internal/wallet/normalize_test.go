package wallet

import (
	stdErrors "errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mr-kenikh/viem/internal/chain"
	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

func mustRawCall(t *testing.T, spec RawCall, opts ...CallOption) Call {
	t.Helper()
	call, err := NewRawCall(spec, opts...)
	if err != nil {
		t.Fatalf("new raw call: %v", err)
	}
	return call
}

func TestNormalizeCallsPreservesOrder(t *testing.T) {
	t.Parallel()

	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	toA := common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")
	toB := common.HexToAddress("0xBbBbBBbbBBbbbbBBbbBBbbbbBBbbBBbbbbBBbbBB")

	calls := []Call{
		mustRawCall(t, RawCall{To: &toA, Data: []byte{0xde, 0xad, 0xbe, 0xef}}),
		mustRawCall(t, RawCall{To: &toB, Value: big.NewInt(69420)}),
	}

	normalized, err := normalizeCalls(calls, mainnet)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	want := []NormalizedCall{
		{ChainID: "0x1", Data: "0xdeadbeef", To: toA.Hex()},
		{ChainID: "0x1", To: toB.Hex(), Value: "0x10f2c"},
	}
	if !reflect.DeepEqual(normalized, want) {
		t.Fatalf("归一化结果不符合预期:\n got %#v\nwant %#v", normalized, want)
	}
}

func TestNormalizeCallsIsIdempotent(t *testing.T) {
	t.Parallel()

	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	to := common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")
	calls := []Call{mustRawCall(t, RawCall{To: &to, Value: big.NewInt(42)})}

	first, err := normalizeCalls(calls, mainnet)
	if err != nil {
		t.Fatalf("first normalize: %v", err)
	}
	second, err := normalizeCalls(calls, mainnet)
	if err != nil {
		t.Fatalf("second normalize: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("两次归一化结果不一致:\n%#v\n%#v", first, second)
	}
}

func TestNormalizePreservesValueAbsence(t *testing.T) {
	t.Parallel()

	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	noValue := mustRawCall(t, RawCall{})
	zeroValue := mustRawCall(t, RawCall{Value: big.NewInt(0)})

	normalized, err := normalizeCalls([]Call{noValue, zeroValue}, mainnet)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if normalized[0].Value != "" {
		t.Fatalf("缺省的 value 必须保持缺省，不能变成 %q", normalized[0].Value)
	}
	if normalized[1].Value != "0x0" {
		t.Fatalf("显式的零值应当编码为 0x0，实际 %q", normalized[1].Value)
	}
}

func TestNormalizePureValueTransferHasNoData(t *testing.T) {
	t.Parallel()

	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	to := common.HexToAddress("0xBbBbBBbbBBbbbbBBbbBBbbbbBBbbBBbbbbBBbbBB")
	call := mustRawCall(t, RawCall{To: &to, Value: big.NewInt(5)})

	normalized, err := normalizeCalls([]Call{call}, mainnet)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if normalized[0].Data != "" {
		t.Fatalf("纯转账调用不应携带 data: %q", normalized[0].Data)
	}
}

func TestNormalizeStructuredCallEmbedsEncodedData(t *testing.T) {
	t.Parallel()

	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	to := common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")
	recipient := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	amount := big.NewInt(1000)

	call, err := NewContractCall(ContractCall{
		ABI:      erc20TransferABI,
		Function: "transfer",
		Args:     []any{recipient, amount},
		To:       to,
	})
	if err != nil {
		t.Fatalf("new contract call: %v", err)
	}

	normalized, err := normalizeCalls([]Call{call}, mainnet)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	encoded, err := EncodeCallData(erc20TransferABI, "transfer", []any{recipient, amount})
	if err != nil {
		t.Fatalf("encode call data: %v", err)
	}
	if normalized[0].Data != hexutil.Encode(encoded) {
		t.Fatalf("编码结果必须原样写入 data 字段: %s", normalized[0].Data)
	}
	if normalized[0].To != to.Hex() {
		t.Fatalf("to 字段必须原样保留: %s", normalized[0].To)
	}
}

func TestNormalizeChainMissingAbortsBatch(t *testing.T) {
	t.Parallel()

	resolvable := mustRawCall(t, RawCall{}, OnChainID(1))
	unresolvable := mustRawCall(t, RawCall{})

	normalized, err := normalizeCalls([]Call{resolvable, unresolvable}, nil)
	if normalized != nil {
		t.Fatalf("链缺失时不允许返回部分结果: %#v", normalized)
	}
	if !stdErrors.Is(err, xerrors.New(xerrors.CodeChainMissing, "")) {
		t.Fatalf("期望 CHAIN_MISSING，实际: %v", err)
	}
	if xe, _ := xerrors.From(err); xe.Metadata()["call_index"] != "1" {
		t.Fatalf("错误应当标注出问题调用的下标: %v", xe.Metadata())
	}
}

func TestNormalizeEncodingErrorPropagatesUnchanged(t *testing.T) {
	t.Parallel()

	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	call, err := NewContractCall(ContractCall{
		ABI:      erc20TransferABI,
		Function: "transfer",
		Args:     []any{"not-an-address"},
		To:       common.Address{},
	})
	if err != nil {
		t.Fatalf("new contract call: %v", err)
	}

	_, err = normalizeCalls([]Call{call}, mainnet)
	if xerrors.CodeOf(err) != xerrors.CodeEncodingFailure {
		t.Fatalf("编码失败应当原样向上传播: %v", err)
	}
}
