package channel

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/flankk/node/flankk"
	"github.com/flankk/node/pkg/sign"
)

// PermitValidity is how long, in seconds past the latest block, the permits
// of open and fund operations stay usable.
const PermitValidity = 4200

// freshState returns the ledger with its hashes recomputed.
func (c *Channel) freshState() (*State, error) {
	state, err := c.State()
	if err != nil {
		return nil, err
	}
	if state.Dirty() {
		if err := state.Recompute(); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (c *Channel) updateTypedData(state *State) apitypes.TypedData {
	return flankk.UpdateChannelTypedData(c.domain, c.id, state.stateHash)
}

// SignUpdate signs the current state hash and keeps it as the local party's
// signature.
func (c *Channel) SignUpdate() (sign.Signature, error) {
	state, err := c.freshState()
	if err != nil {
		return nil, err
	}

	sig, err := sign.SignTypedData(c.signer, c.updateTypedData(state))
	if err != nil {
		return nil, fmt.Errorf("failed to sign update: %w", err)
	}
	*c.sigSlot(c.SelfSide()) = sig
	return sig.Clone(), nil
}

// AcceptPeerSignature stores sig as the peer's signature if it signs the
// current state hash.
func (c *Channel) AcceptPeerSignature(sig sign.Signature) error {
	state, err := c.freshState()
	if err != nil {
		return err
	}

	ok, err := sign.VerifyTypedData(c.updateTypedData(state), sig, c.Peer())
	if err != nil || !ok {
		return ErrInvalidPeerSignature
	}
	*c.sigSlot(c.SelfSide().Other()) = sig.Clone()
	return nil
}

// ValidateIntegrity checks that both stored signatures sign the current
// state hash. The peer's signature is checked first.
func (c *Channel) ValidateIntegrity() error {
	state, err := c.freshState()
	if err != nil {
		return err
	}

	td := c.updateTypedData(state)
	if ok, err := sign.VerifyTypedData(td, c.PeerSignature(), c.Peer()); err != nil || !ok {
		return ErrInvalidPeerSignature
	}
	if ok, err := sign.VerifyTypedData(td, c.SelfSignature(), c.Self()); err != nil || !ok {
		return ErrInvalidSelfSignature
	}
	return nil
}

// RecoverPeerPublicKey recovers the peer's public key from its stored signature.
func (c *Channel) RecoverPeerPublicKey() (*ecdsa.PublicKey, error) {
	state, err := c.freshState()
	if err != nil {
		return nil, err
	}
	return sign.RecoverTypedDataPublicKey(c.updateTypedData(state), c.PeerSignature())
}

// SignSettlement authorizes an on-chain settlement from the current state.
func (c *Channel) SignSettlement() (sign.Signature, error) {
	state, err := c.freshState()
	if err != nil {
		return nil, err
	}
	return sign.SignTypedData(c.signer, flankk.SettlementTypedData(c.domain, c.id, state.stateHash))
}

// SignCollaborativeWithdraw authorizes both parties withdrawing their
// settled balances before deadline.
func (c *Channel) SignCollaborativeWithdraw(deadline *big.Int) (sign.Signature, error) {
	state, err := c.freshState()
	if err != nil {
		return nil, err
	}

	settled := state.SettledBalances()
	td := flankk.CollaborativeWithdrawTypedData(c.domain, c.id, state.stateHash, settled.BalA(), settled.BalB(), deadline)
	return sign.SignTypedData(c.signer, td)
}

// SignOpen binds permit to the opening of the channel.
func (c *Channel) SignOpen(permit sign.Signature, nodeType bool) (sign.Signature, error) {
	permitHash, err := flankk.PermitHash(permit)
	if err != nil {
		return nil, err
	}
	return sign.SignTypedData(c.signer, flankk.OpenChannelTypedData(c.domain, c.id, permitHash, nodeType))
}

// SignFund binds permit to a top-up of the channel.
func (c *Channel) SignFund(permit sign.Signature) (sign.Signature, error) {
	permitHash, err := flankk.PermitHash(permit)
	if err != nil {
		return nil, err
	}
	return sign.SignTypedData(c.signer, flankk.FundChannelTypedData(c.domain, c.id, permitHash))
}

// OpenChannelOp is what the custody contract needs to open the channel
// with the local party's deposit.
type OpenChannelOp struct {
	Owner         common.Address `json:"owner"`
	OpenSignature sign.Signature `json:"openSignature"`
	Permit        sign.Signature `json:"permit"`
	Value         *hexutil.Big   `json:"value"`
	Deadline      *hexutil.Big   `json:"deadline"`
	NodeType      bool           `json:"nodeType"`
}

// FundingOp is what the custody contract needs to top up the channel.
type FundingOp struct {
	Owner         common.Address `json:"owner"`
	FundSignature sign.Signature `json:"fundSignature"`
	Permit        sign.Signature `json:"permit"`
	Value         *hexutil.Big   `json:"value"`
	Deadline      *hexutil.Big   `json:"deadline"`
}

// Proof is the funding proof a CDTLC expansion of this deposit refers to.
func (op FundingOp) Proof() (common.Hash, error) {
	return flankk.FundingProof(op.FundSignature, op.Permit)
}

// OpenChannelOp signs a permit for the local settled balance and the
// matching open confirmation.
func (c *Channel) OpenChannelOp(ctx context.Context, nodeType bool) (OpenChannelOp, error) {
	state, err := c.State()
	if err != nil {
		return OpenChannelOp{}, err
	}
	deposit := state.SettledBalances().Balance(c.SelfSide())

	permit, deadline, err := c.signPermit(ctx, deposit)
	if err != nil {
		return OpenChannelOp{}, err
	}
	openSig, err := c.SignOpen(permit, nodeType)
	if err != nil {
		return OpenChannelOp{}, err
	}

	return OpenChannelOp{
		Owner:         c.Self(),
		OpenSignature: openSig,
		Permit:        permit,
		Value:         (*hexutil.Big)(deposit),
		Deadline:      (*hexutil.Big)(deadline),
		NodeType:      nodeType,
	}, nil
}

// FundingOp signs a permit for deposit and the matching fund confirmation.
func (c *Channel) FundingOp(ctx context.Context, deposit *big.Int) (FundingOp, error) {
	if deposit == nil || deposit.Sign() <= 0 {
		return FundingOp{}, ErrInvalidAmount
	}

	permit, deadline, err := c.signPermit(ctx, deposit)
	if err != nil {
		return FundingOp{}, err
	}
	fundSig, err := c.SignFund(permit)
	if err != nil {
		return FundingOp{}, err
	}

	return FundingOp{
		Owner:         c.Self(),
		FundSignature: fundSig,
		Permit:        permit,
		Value:         (*hexutil.Big)(new(big.Int).Set(deposit)),
		Deadline:      (*hexutil.Big)(deadline),
	}, nil
}

// signPermit signs an ERC-2612 permit letting the custody contract pull
// value from the local party, valid for PermitValidity seconds past the
// latest block.
func (c *Channel) signPermit(ctx context.Context, value *big.Int) (sign.Signature, *big.Int, error) {
	if c.cc.Reader == nil {
		return nil, nil, ErrPermitUnsupported
	}
	pr, ok := c.cc.Reader.(PermitReader)
	if !ok {
		return nil, nil, ErrPermitUnsupported
	}

	blockTime, err := c.cc.Reader.BlockTime(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read block time: %w", err)
	}
	deadline := new(big.Int).SetUint64(blockTime + PermitValidity)

	tokenDomain, err := pr.TokenDomain(ctx, c.token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read token domain: %w", err)
	}
	nonce, err := pr.PermitNonce(ctx, c.token, c.Self())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read permit nonce: %w", err)
	}

	td := flankk.PermitTypedData(tokenDomain, c.Self(), c.domain.VerifyingContract, value, nonce, deadline)
	permit, err := sign.SignTypedData(c.signer, td)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign permit: %w", err)
	}
	return permit, deadline, nil
}
