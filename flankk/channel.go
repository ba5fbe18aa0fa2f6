package flankk

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var eip712DomainTypeHash = crypto.Keccak256Hash(
	[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
)

// Domain is the EIP-712 domain of a channel custody contract.
type Domain struct {
	ChainID           uint64         `json:"chainId" yaml:"chain_id"`
	Name              string         `json:"name" yaml:"name"`
	VerifyingContract common.Address `json:"verifyingContract" yaml:"verifying_contract"`
	Version           string         `json:"version" yaml:"version"`
}

// TypedDataDomain converts the domain into its apitypes form.
func (d Domain) TypedDataDomain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(d.ChainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

// DomainSeparator returns the EIP-712 domain separator of d.
func DomainSeparator(d Domain) (common.Hash, error) {
	args := abi.Arguments{
		{Type: bytes32T},
		{Type: bytes32T},
		{Type: bytes32T},
		{Type: uint256T},
		{Type: addressT},
	}

	encoded, err := args.Pack(
		eip712DomainTypeHash,
		crypto.Keccak256Hash([]byte(d.Name)),
		crypto.Keccak256Hash([]byte(d.Version)),
		new(big.Int).SetUint64(d.ChainID),
		d.VerifyingContract,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack domain: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// ChannelID returns keccak256(abi.encode(token, user0, user1, domainSeparator)).
func ChannelID(token, user0, user1 common.Address, d Domain) (common.Hash, error) {
	separator, err := DomainSeparator(d)
	if err != nil {
		return common.Hash{}, err
	}

	args := abi.Arguments{
		{Type: addressT},
		{Type: addressT},
		{Type: addressT},
		{Type: bytes32T},
	}

	encoded, err := args.Pack(token, user0, user1, separator)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack channel: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}
