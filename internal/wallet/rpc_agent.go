package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// methodSendCalls is the JSON-RPC method carrying the batch envelope.
const methodSendCalls = "wallet_sendCalls"

// RPCAgentConfig describes how to reach the wallet endpoint.
type RPCAgentConfig struct {
	Name string
	URL  string
}

// RPCAgent implements the Agent interface over a JSON-RPC connection.
type RPCAgent struct {
	name      string
	rpcClient *gethrpc.Client
}

// DialRPCAgent connects to the configured wallet endpoint.
func DialRPCAgent(ctx context.Context, cfg RPCAgentConfig) (*RPCAgent, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("未配置钱包 agent 的 RPC 地址")
	}
	rpcClient, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("连接钱包 agent 失败: %w", err)
	}
	return &RPCAgent{name: cfg.Name, rpcClient: rpcClient}, nil
}

// Request submits the envelope and returns the wallet's batch identifier.
// RetryCount counts extra attempts; SendCalls always passes zero because a
// batch of state-changing calls is not safe to resubmit blindly.
func (a *RPCAgent) Request(ctx context.Context, req *BatchRequest, opts RequestOptions) (string, error) {
	if a == nil || a.rpcClient == nil {
		return "", errors.New("未初始化的钱包 agent")
	}

	var identifier string
	var lastErr error
	for attempt := 0; attempt <= opts.RetryCount; attempt++ {
		if err := a.rpcClient.CallContext(ctx, &identifier, methodSendCalls, req); err != nil {
			lastErr = err
			continue
		}
		return identifier, nil
	}
	return "", lastErr
}

// Close releases the underlying connection.
func (a *RPCAgent) Close() {
	if a == nil || a.rpcClient == nil {
		return
	}
	a.rpcClient.Close()
	a.rpcClient = nil
}

var _ Agent = (*RPCAgent)(nil)
