package flankk

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Primary types of the channel confirmations signed by the parties.
const (
	OpenChannelConf           = "OpenChannelConf"
	FundChannelConf           = "FundChannelConf"
	UpdateChannelConf         = "UpdateChannelConf"
	SettlementConf            = "SettlementConf"
	CollaborativeWithdrawConf = "CollaborativeWithdrawConf"
	Permit                    = "Permit"
)

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var confirmationTypes = apitypes.Types{
	"EIP712Domain": domainFields,
	OpenChannelConf: {
		{Name: "channelId", Type: "bytes32"},
		{Name: "userPermitHash", Type: "bytes32"},
		{Name: "nodeType", Type: "bool"},
	},
	FundChannelConf: {
		{Name: "channelId", Type: "bytes32"},
		{Name: "userPermitHash", Type: "bytes32"},
	},
	UpdateChannelConf: {
		{Name: "channelId", Type: "bytes32"},
		{Name: "state", Type: "bytes32"},
	},
	SettlementConf: {
		{Name: "channelId", Type: "bytes32"},
		{Name: "state", Type: "bytes32"},
	},
	CollaborativeWithdrawConf: {
		{Name: "channelId", Type: "bytes32"},
		{Name: "state", Type: "bytes32"},
		{Name: "user0Balance", Type: "uint240"},
		{Name: "user1Balance", Type: "uint240"},
		{Name: "deadline", Type: "uint256"},
	},
	Permit: {
		{Name: "owner", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

func typedData(d Domain, primaryType string, message apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": confirmationTypes["EIP712Domain"],
			primaryType:    confirmationTypes[primaryType],
		},
		PrimaryType: primaryType,
		Domain:      d.TypedDataDomain(),
		Message:     message,
	}
}

// OpenChannelTypedData binds the opener's permit to the channel.
func OpenChannelTypedData(d Domain, channelID, userPermitHash common.Hash, nodeType bool) apitypes.TypedData {
	return typedData(d, OpenChannelConf, apitypes.TypedDataMessage{
		"channelId":      channelID.Hex(),
		"userPermitHash": userPermitHash.Hex(),
		"nodeType":       nodeType,
	})
}

// FundChannelTypedData binds a top-up permit to the channel.
func FundChannelTypedData(d Domain, channelID, userPermitHash common.Hash) apitypes.TypedData {
	return typedData(d, FundChannelConf, apitypes.TypedDataMessage{
		"channelId":      channelID.Hex(),
		"userPermitHash": userPermitHash.Hex(),
	})
}

// UpdateChannelTypedData commits to a state hash of the channel.
func UpdateChannelTypedData(d Domain, channelID, stateHash common.Hash) apitypes.TypedData {
	return typedData(d, UpdateChannelConf, apitypes.TypedDataMessage{
		"channelId": channelID.Hex(),
		"state":     stateHash.Hex(),
	})
}

// SettlementTypedData authorizes settlement from a state hash.
func SettlementTypedData(d Domain, channelID, stateHash common.Hash) apitypes.TypedData {
	return typedData(d, SettlementConf, apitypes.TypedDataMessage{
		"channelId": channelID.Hex(),
		"state":     stateHash.Hex(),
	})
}

// CollaborativeWithdrawTypedData authorizes a joint withdrawal of the settled balances.
func CollaborativeWithdrawTypedData(d Domain, channelID, stateHash common.Hash, user0Balance, user1Balance, deadline *big.Int) apitypes.TypedData {
	return typedData(d, CollaborativeWithdrawConf, apitypes.TypedDataMessage{
		"channelId":    channelID.Hex(),
		"state":        stateHash.Hex(),
		"user0Balance": new(big.Int).Set(user0Balance),
		"user1Balance": new(big.Int).Set(user1Balance),
		"deadline":     new(big.Int).Set(deadline),
	})
}

// PermitTypedData is the ERC-2612 permit of the channel token. The domain is
// the token's own domain, not the custody contract's.
func PermitTypedData(tokenDomain Domain, owner, spender common.Address, value, nonce, deadline *big.Int) apitypes.TypedData {
	return typedData(tokenDomain, Permit, apitypes.TypedDataMessage{
		"owner":    owner.Hex(),
		"spender":  spender.Hex(),
		"value":    new(big.Int).Set(value),
		"nonce":    new(big.Int).Set(nonce),
		"deadline": new(big.Int).Set(deadline),
	})
}

// SignatureParts is the (v, r, s) form of a 65 byte signature.
type SignatureParts struct {
	V uint8
	R [32]byte
	S [32]byte
}

// SplitSignature splits a 65 byte r||s||v signature. V is normalized to 27/28.
func SplitSignature(sig []byte) (SignatureParts, error) {
	if len(sig) != 65 {
		return SignatureParts{}, fmt.Errorf("invalid signature length: got %d, want 65", len(sig))
	}

	var parts SignatureParts
	copy(parts.R[:], sig[0:32])
	copy(parts.S[:], sig[32:64])
	parts.V = sig[64]
	if parts.V < 27 {
		parts.V += 27
	}
	return parts, nil
}

var signatureT, _ = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
	{Name: "v", Type: "uint8"},
	{Name: "r", Type: "bytes32"},
	{Name: "s", Type: "bytes32"},
})

// EncodeSignature returns abi.encode((uint8 v, bytes32 r, bytes32 s)).
func EncodeSignature(sig []byte) ([]byte, error) {
	parts, err := SplitSignature(sig)
	if err != nil {
		return nil, err
	}
	return abi.Arguments{{Type: signatureT}}.Pack(parts)
}

// PermitHash is the userPermitHash bound by open and fund confirmations.
func PermitHash(permit []byte) (common.Hash, error) {
	encoded, err := EncodeSignature(permit)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// FundingProof is keccak256(abi.encode(fundSignature, permit)), the proof a
// CDTLC volume expansion refers to.
func FundingProof(fundSignature, permit []byte) (common.Hash, error) {
	fund, err := SplitSignature(fundSignature)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fund signature: %w", err)
	}
	perm, err := SplitSignature(permit)
	if err != nil {
		return common.Hash{}, fmt.Errorf("permit: %w", err)
	}

	encoded, err := abi.Arguments{{Type: signatureT}, {Type: signatureT}}.Pack(fund, perm)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack funding proof: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}
