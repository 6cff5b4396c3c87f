package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mr-kenikh/viem/internal/chain"
)

const erc20TransferABI = `[{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

func TestNewContractCallRequiresABIAndFunction(t *testing.T) {
	t.Parallel()

	_, err := NewContractCall(ContractCall{Function: "transfer", To: common.Address{}})
	if err == nil {
		t.Fatal("缺少 ABI 应当报错")
	}
	_, err = NewContractCall(ContractCall{ABI: erc20TransferABI, To: common.Address{}})
	if err == nil {
		t.Fatal("缺少函数名应当报错")
	}
}

func TestCallRejectsConflictingChainRefs(t *testing.T) {
	t.Parallel()

	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	_, err := NewRawCall(RawCall{}, OnChain(mainnet), OnChainID(10))
	if err == nil {
		t.Fatal("同时指定链描述与裸链 id 应当报错")
	}
}

func TestEffectiveChainIDPrecedence(t *testing.T) {
	t.Parallel()

	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	optimism := &chain.Chain{Name: "optimism", ID: big.NewInt(10)}

	withDescriptor, err := NewRawCall(RawCall{}, OnChain(optimism))
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	if got := withDescriptor.effectiveChainID(mainnet); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("链描述应当优先于批次默认链: %s", got)
	}

	withBareID, err := NewRawCall(RawCall{}, OnChainID(8453))
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	if got := withBareID.effectiveChainID(mainnet); got.Cmp(big.NewInt(8453)) != 0 {
		t.Fatalf("裸链 id 应当优先于批次默认链: %s", got)
	}

	plain, err := NewRawCall(RawCall{})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	if got := plain.effectiveChainID(mainnet); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("无覆盖时应当使用批次默认链: %s", got)
	}
	if got := plain.effectiveChainID(nil); got != nil {
		t.Fatalf("任何层级都未提供链时应当得到 nil: %s", got)
	}
}
