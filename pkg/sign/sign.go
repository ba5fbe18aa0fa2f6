package sign

import (
	"crypto/ecdsa"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Signer signs 32 byte digests on behalf of a single account.
type Signer interface {
	Address() common.Address             // Address of the account.
	PublicKey() *ecdsa.PublicKey         // Public key of the account.
	Sign(hash []byte) (Signature, error) // Sign signs a pre-computed digest.
}

// Signature is a 65 byte r||s||v signature with v in {27, 28}.
type Signature []byte

// MarshalJSON encodes the signature as a 0x-prefixed hex string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a 0x-prefixed hex string.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(hexStr)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func (s Signature) String() string {
	return hexutil.Encode(s)
}

// IsEmpty reports whether no signature is present.
func (s Signature) IsEmpty() bool {
	return len(s) == 0
}

// Clone returns an independent copy of s.
func (s Signature) Clone() Signature {
	if s == nil {
		return nil
	}
	out := make(Signature, len(s))
	copy(out, s)
	return out
}
