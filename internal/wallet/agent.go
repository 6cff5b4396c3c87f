package wallet

import "context"

// RequestOptions controls delivery behaviour for one agent request.
// RetryCount is the number of extra attempts after the first one.
type RequestOptions struct {
	RetryCount int
}

// Agent is the external signer/wallet boundary. It receives the assembled
// batch envelope and returns an opaque batch identifier, or fails.
type Agent interface {
	Request(ctx context.Context, req *BatchRequest, opts RequestOptions) (string, error)
}
