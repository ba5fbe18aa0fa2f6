package evm

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	ipfslog "github.com/ipfs/go-log/v2"
	"github.com/layer-3/clearsync/pkg/debounce"
	"github.com/pkg/errors"

	"github.com/flankk/node/flankk"
	"github.com/flankk/node/pkg/channel"
	"github.com/flankk/node/pkg/log"
)

var evmLogger = ipfslog.Logger("flankk-evm")

const (
	checkChainIDCallTimeout = 5 * time.Second
	headerCallTimeout       = 1 * time.Minute
)

// Backend is the part of an Ethereum client the reader calls. *ethclient.Client implements it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

var (
	_ channel.ChainReader  = (*Reader)(nil)
	_ channel.PermitReader = (*Reader)(nil)
)

// Reader serves the read-only chain views channels need: verifier calls,
// the latest block time and ERC-2612 token data.
type Reader struct {
	backend Backend
	chainID uint64
}

// NewReader wraps backend, which must be connected to chainID.
func NewReader(backend Backend, chainID uint64) *Reader {
	return &Reader{backend: backend, chainID: chainID}
}

// Dial connects to rpcURL and checks that the endpoint serves chainID.
func Dial(ctx context.Context, rpcURL string, chainID uint64) (*Reader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to blockchain node")
	}

	r := NewReader(client, chainID)
	if err := r.CheckChainID(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return r, nil
}

// CheckChainID fails if the backend reports another chain.
func (r *Reader) CheckChainID(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkChainIDCallTimeout)
	defer cancel()

	id, err := r.backend.ChainID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read chain id")
	}
	if !id.IsUint64() || id.Uint64() != r.chainID {
		return errors.Errorf("chain id mismatch: expected %d, got %s", r.chainID, id)
	}
	return nil
}

func (r *Reader) ChainID() uint64 { return r.chainID }

// ValidateCondition performs `validate(statement, source)` on verifier at the latest block.
func (r *Reader) ValidateCondition(ctx context.Context, verifier common.Address, stmt flankk.Statement, source []byte) (bool, error) {
	data, err := flankk.PackValidateCall(stmt, source)
	if err != nil {
		return false, errors.Wrap(err, "failed to pack validate call")
	}

	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &verifier, Data: data}, nil)
	if err != nil {
		return false, errors.Wrapf(err, "validate call to %s failed", verifier)
	}

	valid, err := flankk.UnpackValidateResult(out)
	if err != nil {
		return false, errors.Wrap(err, "failed to unpack validate result")
	}

	log.FromContext(ctx).Debug("condition validated", "verifier", verifier, "valid", valid)
	return valid, nil
}

// BlockTime returns the timestamp of the latest block. Header reads are retried.
func (r *Reader) BlockTime(ctx context.Context) (uint64, error) {
	headerCtx, cancel := context.WithTimeout(ctx, headerCallTimeout)
	defer cancel()

	var header *types.Header
	err := debounce.Debounce(headerCtx, evmLogger, func(ctx context.Context) error {
		var err error
		header, err = r.backend.HeaderByNumber(ctx, nil)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to get latest block")
	}
	return header.Time, nil
}
