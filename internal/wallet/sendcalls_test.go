package wallet

import (
	"context"
	stdErrors "errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mr-kenikh/viem/internal/account"
	"github.com/mr-kenikh/viem/internal/chain"
	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

type fakeAgent struct {
	attempts   int
	identifier string
	err        error
	lastReq    *BatchRequest
}

func (f *fakeAgent) Request(_ context.Context, req *BatchRequest, opts RequestOptions) (string, error) {
	f.attempts += opts.RetryCount + 1
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.identifier, nil
}

type fakeResolver struct {
	account *account.Account
	err     error
}

func (f *fakeResolver) Resolve(string) (*account.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.account, nil
}

func testSender(agent Agent, resolver account.Resolver, opts ...SenderOption) *Sender {
	return NewSender(agent, resolver, opts...)
}

func senderAccount() *account.Account {
	return &account.Account{Address: common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")}
}

func TestSendCallsReturnsBatchIdentifier(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{identifier: "0x1234abcd"}
	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	sender := testSender(agent, &fakeResolver{account: senderAccount()},
		WithDefaults(Defaults{Account: "default", Chain: mainnet}))

	to := common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")
	call, err := NewRawCall(RawCall{To: &to, Data: []byte{0xde, 0xad, 0xbe, 0xef}})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}

	id, err := sender.SendCalls(context.Background(), SendCallsParams{
		Calls:        []Call{call},
		Capabilities: map[string]any{"paymasterService": map[string]any{"url": "https://example.invalid"}},
	})
	if err != nil {
		t.Fatalf("send calls: %v", err)
	}
	if id != "0x1234abcd" {
		t.Fatalf("标识符应当原样返回: %s", id)
	}

	req := agent.lastReq
	if req == nil {
		t.Fatal("agent 未收到请求")
	}
	if req.Version != DefaultVersion {
		t.Fatalf("未指定版本时应当使用默认值: %s", req.Version)
	}
	if req.ChainID != "0x1" {
		t.Fatalf("批次链 id 不符合预期: %s", req.ChainID)
	}
	if req.From != senderAccount().Address.Hex() {
		t.Fatalf("发送方地址不符合预期: %s", req.From)
	}
	if _, ok := req.Capabilities["paymasterService"]; !ok {
		t.Fatalf("capabilities 应当透传: %#v", req.Capabilities)
	}
	if len(req.Calls) != 1 || req.Calls[0].Data != "0xdeadbeef" {
		t.Fatalf("请求中的调用不符合预期: %#v", req.Calls)
	}
}

func TestSendCallsAccountMissingBeforeNormalization(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{identifier: "unused"}
	sender := testSender(agent, &fakeResolver{account: senderAccount()})

	// 结构化调用的 ABI 是非法的：若账户检查先于归一化执行，
	// 这里必须收到 ACCOUNT_MISSING 而不是编码错误。
	broken, err := NewContractCall(ContractCall{ABI: "{broken", Function: "transfer"})
	if err != nil {
		t.Fatalf("new contract call: %v", err)
	}

	_, err = sender.SendCalls(context.Background(), SendCallsParams{Calls: []Call{broken}})
	if xerrors.CodeOf(err) != xerrors.CodeAccountMissing {
		t.Fatalf("期望 ACCOUNT_MISSING，实际: %v", err)
	}
	if agent.attempts != 0 {
		t.Fatalf("账户缺失时不允许调用 agent: %d", agent.attempts)
	}
}

func TestSendCallsChainMissingSkipsDispatch(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{identifier: "unused"}
	sender := testSender(agent, &fakeResolver{account: senderAccount()},
		WithDefaults(Defaults{Account: "default"}))

	call, err := NewRawCall(RawCall{})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}

	_, err = sender.SendCalls(context.Background(), SendCallsParams{Calls: []Call{call}})
	if xerrors.CodeOf(err) != xerrors.CodeChainMissing {
		t.Fatalf("期望 CHAIN_MISSING，实际: %v", err)
	}
	if agent.attempts != 0 {
		t.Fatalf("链缺失时不允许调用 agent: %d", agent.attempts)
	}
}

func TestSendCallsTranslatesTransportFault(t *testing.T) {
	t.Parallel()

	cause := stdErrors.New("user rejected the request")
	agent := &fakeAgent{err: cause}
	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	sender := testSender(agent, &fakeResolver{account: senderAccount()},
		WithDefaults(Defaults{Account: "default", Chain: mainnet}))

	call, err := NewRawCall(RawCall{})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}

	_, err = sender.SendCalls(context.Background(), SendCallsParams{
		Calls:        []Call{call},
		Capabilities: map[string]any{"atomicBatch": true},
	})
	if xerrors.CodeOf(err) != xerrors.CodeTransportFault {
		t.Fatalf("期望 TRANSPORT_FAULT，实际: %v", err)
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("原始失败原因必须保留在错误链中: %v", err)
	}

	xe, _ := xerrors.From(err)
	meta := xe.Metadata()
	if meta["chain_id"] != "0x1" {
		t.Fatalf("翻译后的错误应当携带解析出的链 id: %v", meta)
	}
	if meta["from"] != senderAccount().Address.Hex() {
		t.Fatalf("翻译后的错误应当携带解析出的账户: %v", meta)
	}
	if meta["capabilities"] != "atomicBatch" {
		t.Fatalf("翻译后的错误应当携带 capability 键: %v", meta)
	}
}

func TestSendCallsNeverRetriesDispatch(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{err: stdErrors.New("gateway timeout")}
	mainnet := &chain.Chain{Name: "mainnet", ID: big.NewInt(1)}
	sender := testSender(agent, &fakeResolver{account: senderAccount()},
		WithDefaults(Defaults{Account: "default", Chain: mainnet}))

	call, err := NewRawCall(RawCall{})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}

	_, err = sender.SendCalls(context.Background(), SendCallsParams{Calls: []Call{call}})
	if err == nil {
		t.Fatal("agent 失败时必须向上报错")
	}
	if agent.attempts != 1 {
		t.Fatalf("只允许一次投递尝试，实际 %d", agent.attempts)
	}
}

func TestSendCallsEnvelopeChainFallsBackToFirstCall(t *testing.T) {
	t.Parallel()

	agent := &fakeAgent{identifier: "0xff"}
	sender := testSender(agent, &fakeResolver{account: senderAccount()},
		WithDefaults(Defaults{Account: "default"}))

	call, err := NewRawCall(RawCall{}, OnChainID(8453))
	if err != nil {
		t.Fatalf("new call: %v", err)
	}

	if _, err := sender.SendCalls(context.Background(), SendCallsParams{Calls: []Call{call}}); err != nil {
		t.Fatalf("send calls: %v", err)
	}
	if agent.lastReq.ChainID != "0x2105" {
		t.Fatalf("批次链 id 应当回退到第一个调用: %s", agent.lastReq.ChainID)
	}
}
