package sign

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedDataHash returns the EIP-712 digest of td.
func TypedDataHash(td apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}

// SignTypedData signs the EIP-712 digest of td.
func SignTypedData(signer Signer, td apitypes.TypedData) (Signature, error) {
	hash, err := TypedDataHash(td)
	if err != nil {
		return nil, err
	}
	return signer.Sign(hash)
}

// RecoverTypedDataPublicKey returns the public key that signed td.
func RecoverTypedDataPublicKey(td apitypes.TypedData, sig Signature) (*ecdsa.PublicKey, error) {
	hash, err := TypedDataHash(td)
	if err != nil {
		return nil, err
	}
	return RecoverPublicKeyFromHash(hash, sig)
}

// RecoverTypedDataSigner returns the address that signed td.
func RecoverTypedDataSigner(td apitypes.TypedData, sig Signature) (common.Address, error) {
	hash, err := TypedDataHash(td)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddressFromHash(hash, sig)
}

// VerifyTypedData reports whether sig is a signature of td by expected.
// A malformed signature is reported as an error rather than false.
func VerifyTypedData(td apitypes.TypedData, sig Signature, expected common.Address) (bool, error) {
	addr, err := RecoverTypedDataSigner(td, sig)
	if err != nil {
		return false, err
	}
	return addr == expected, nil
}
