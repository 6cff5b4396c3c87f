package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "github.com/mr-kenikh/viem/internal/errors"
)

// EncodeQuantity converts a non-negative integer to its canonical 0x-prefixed
// hexadecimal wire form. Zero encodes as "0x0". Absence (nil) is the caller's
// responsibility: absent values must stay absent instead of being coerced to
// zero, so nil is rejected here rather than defaulted.
func EncodeQuantity(n *big.Int) (string, error) {
	if n == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "数值为空，无法编码")
	}
	if n.Sign() < 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "数值不能为负: "+n.String())
	}
	return hexutil.EncodeBig(n), nil
}
