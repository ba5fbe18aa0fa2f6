package flankk

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// UnconditionalParams is the parameter blob of an unconditional statement,
// the single byte 0x00 ("0x0" on the wire).
func UnconditionalParams() []byte {
	return []byte{0x00}
}

// EncodeTLCParams encodes `(uint256 deadline)`.
func EncodeTLCParams(deadline *big.Int) ([]byte, error) {
	args := abi.Arguments{{Type: uint256T}}
	return args.Pack(deadline)
}

// EncodeSSTLCParams encodes `(address stealthUser, uint256 deadline)`.
func EncodeSSTLCParams(stealthUser common.Address, deadline *big.Int) ([]byte, error) {
	args := abi.Arguments{
		{Type: addressT},
		{Type: uint256T},
	}
	return args.Pack(stealthUser, deadline)
}

// EncodeCTLCParams encodes `(bytes32 roothash, bytes32 altRoothash, uint256 deadline)`.
func EncodeCTLCParams(roothash, altRoothash common.Hash, deadline *big.Int) ([]byte, error) {
	args := abi.Arguments{
		{Type: bytes32T},
		{Type: bytes32T},
		{Type: uint256T},
	}
	return args.Pack(roothash, altRoothash, deadline)
}

// EncodeCDTLCParams encodes `(address log, bytes32 proof, uint256 deadline)`.
// The log address is the per-chain deposit log contract the verifier consults.
func EncodeCDTLCParams(logAddress common.Address, proof common.Hash, deadline *big.Int) ([]byte, error) {
	args := abi.Arguments{
		{Type: addressT},
		{Type: bytes32T},
		{Type: uint256T},
	}
	return args.Pack(logAddress, proof, deadline)
}
