package sign

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var _ Signer = (*EthereumSigner)(nil)

// EthereumSigner signs with an in-memory secp256k1 key.
type EthereumSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewEthereumSigner creates a signer from a hex-encoded private key, with or without 0x prefix.
func NewEthereumSigner(privateKeyHex string) (*EthereumSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	key, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("could not parse ethereum private key: %w", err)
	}
	return NewEthereumSignerFromKey(key), nil
}

// NewEthereumSignerFromKey wraps an existing private key.
func NewEthereumSignerFromKey(key *ecdsa.PrivateKey) *EthereumSigner {
	return &EthereumSigner{
		privateKey: key,
		address:    ethcrypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *EthereumSigner) Address() common.Address { return s.address }

func (s *EthereumSigner) PublicKey() *ecdsa.PublicKey { return &s.privateKey.PublicKey }

// Sign expects the input to be a 32 byte digest.
func (s *EthereumSigner) Sign(hash []byte) (Signature, error) {
	sig, err := ethcrypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, err
	}
	// ecrecover precompile expects v in {27, 28}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return Signature(sig), nil
}

// RecoverPublicKeyFromHash recovers the public key that produced sig over hash.
func RecoverPublicKeyFromHash(hash []byte, sig Signature) (*ecdsa.PublicKey, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature length: got %d, want 65", len(sig))
	}
	localSig := sig.Clone()
	if localSig[64] >= 27 {
		localSig[64] -= 27
	}
	pubKey, err := ethcrypto.SigToPub(hash, localSig)
	if err != nil {
		return nil, fmt.Errorf("signature recovery failed: %w", err)
	}
	return pubKey, nil
}

// RecoverAddressFromHash recovers the address that produced sig over hash.
func RecoverAddressFromHash(hash []byte, sig Signature) (common.Address, error) {
	pubKey, err := RecoverPublicKeyFromHash(hash, sig)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}
