package evm

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/flankk/node/flankk"
	"github.com/flankk/node/pkg/log"
)

const erc20PermitABIJSON = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"version","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// defaultPermitVersion is the EIP-712 version of OpenZeppelin ERC20Permit
// tokens that do not expose version().
const defaultPermitVersion = "1"

var erc20PermitABI = mustParseABI(erc20PermitABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func (r *Reader) call(ctx context.Context, to common.Address, method string, args ...any) ([]any, error) {
	data, err := erc20PermitABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s call to %s failed", method, to)
	}

	values, err := erc20PermitABI.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}
	if len(values) != 1 {
		return nil, errors.Errorf("unexpected number of %s return values: %d", method, len(values))
	}
	return values, nil
}

// TokenDomain returns the EIP-712 domain the token verifies permits under.
func (r *Reader) TokenDomain(ctx context.Context, token common.Address) (flankk.Domain, error) {
	values, err := r.call(ctx, token, "name")
	if err != nil {
		return flankk.Domain{}, err
	}
	name, ok := values[0].(string)
	if !ok {
		return flankk.Domain{}, errors.Errorf("unexpected name type %T", values[0])
	}

	version := defaultPermitVersion
	if values, err := r.call(ctx, token, "version"); err == nil {
		if v, ok := values[0].(string); ok && v != "" {
			version = v
		}
	} else {
		log.FromContext(ctx).Debug("token has no version(), using default", "token", token, "version", version)
	}

	return flankk.Domain{
		ChainID:           r.chainID,
		Name:              name,
		VerifyingContract: token,
		Version:           version,
	}, nil
}

// PermitNonce returns the ERC-2612 nonce of owner on token.
func (r *Reader) PermitNonce(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return r.uint256(ctx, token, "nonces", owner)
}

// TokenBalance returns the token balance of account.
func (r *Reader) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	return r.uint256(ctx, token, "balanceOf", account)
}

func (r *Reader) uint256(ctx context.Context, token common.Address, method string, arg common.Address) (*big.Int, error) {
	values, err := r.call(ctx, token, method, arg)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected %s type %T", method, values[0])
	}
	return v, nil
}
