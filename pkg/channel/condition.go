package channel

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/flankk/node/flankk"
)

// ConditionType tags a Condition variant. The empty tag is the unconditional None.
type ConditionType string

const (
	ConditionNone  ConditionType = ""
	ConditionTLC   ConditionType = "TLC"   // time lock, legacy hash lock
	ConditionSSTLC ConditionType = "SSTLC" // stealth-secret time lock
	ConditionCTLC  ConditionType = "CTLC"  // commitment-root time lock
	ConditionCDTLC ConditionType = "CDTLC" // confirmed-deposit time lock, used for volume expansion
)

// Condition gates when a statement's `to` record takes effect.
// The variants are None, TLC, SSTLC, CTLC and CDTLC.
type Condition interface {
	Type() ConditionType
	isCondition()
}

type None struct{}

type TLC struct {
	Deadline *big.Int
}

type SSTLC struct {
	Deadline    *big.Int
	StealthUser common.Address
	Multiplier  string // opaque hex carried for the recipient, not part of the encoding
}

type CTLC struct {
	Deadline    *big.Int
	Roothash    common.Hash
	AltRoothash common.Hash
}

// CDTLC resolves once the deposit identified by Proof is confirmed in the
// chain's deposit log contract. LogAddress is always taken from the verifier
// table, never from the peer.
type CDTLC struct {
	Deadline   *big.Int
	Proof      common.Hash
	LogAddress common.Address
}

func (None) Type() ConditionType  { return ConditionNone }
func (TLC) Type() ConditionType   { return ConditionTLC }
func (SSTLC) Type() ConditionType { return ConditionSSTLC }
func (CTLC) Type() ConditionType  { return ConditionCTLC }
func (CDTLC) Type() ConditionType { return ConditionCDTLC }

func (None) isCondition()  {}
func (TLC) isCondition()   {}
func (SSTLC) isCondition() {}
func (CTLC) isCondition()  {}
func (CDTLC) isCondition() {}

func isNone(c Condition) bool {
	return c == nil || c.Type() == ConditionNone
}

// RequiresProof reports whether statements under t can only be disposed
// before their deadline with an out-of-band proof.
func RequiresProof(t ConditionType) bool {
	switch t {
	case ConditionTLC, ConditionSSTLC, ConditionCTLC:
		return true
	default:
		return false
	}
}

// ConditionDeadline returns the deadline of c, or false for None.
func ConditionDeadline(c Condition) (*big.Int, bool) {
	var d *big.Int
	switch v := c.(type) {
	case TLC:
		d = v.Deadline
	case SSTLC:
		d = v.Deadline
	case CTLC:
		d = v.Deadline
	case CDTLC:
		d = v.Deadline
	default:
		return nil, false
	}
	return cloneInt(d), true
}

// EncodeCondition returns the ABI encoded parameters passed to the verifier.
// None encodes to empty bytes.
func EncodeCondition(c Condition) ([]byte, error) {
	if d, ok := ConditionDeadline(c); ok && d.Sign() < 0 {
		return nil, fmt.Errorf("negative deadline %s", d)
	}

	switch v := c.(type) {
	case nil, None:
		return flankk.UnconditionalParams(), nil
	case TLC:
		return flankk.EncodeTLCParams(cloneInt(v.Deadline))
	case SSTLC:
		return flankk.EncodeSSTLCParams(v.StealthUser, cloneInt(v.Deadline))
	case CTLC:
		return flankk.EncodeCTLCParams(v.Roothash, v.AltRoothash, cloneInt(v.Deadline))
	case CDTLC:
		return flankk.EncodeCDTLCParams(v.LogAddress, v.Proof, cloneInt(v.Deadline))
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidConditionType, c)
	}
}

// CloneCondition returns a deep copy of c.
func CloneCondition(c Condition) Condition {
	switch v := c.(type) {
	case TLC:
		v.Deadline = cloneInt(v.Deadline)
		return v
	case SSTLC:
		v.Deadline = cloneInt(v.Deadline)
		return v
	case CTLC:
		v.Deadline = cloneInt(v.Deadline)
		return v
	case CDTLC:
		v.Deadline = cloneInt(v.Deadline)
		return v
	default:
		return None{}
	}
}

// SerializedCondition is the wire form of a condition: the JSON string "0x0"
// for None, otherwise {type, params, meta} with hex encoded params.
type SerializedCondition struct {
	Type   ConditionType     `json:"type"`
	Params map[string]string `json:"params"`
	Meta   map[string]string `json:"meta"`
}

const noneConditionWire = "0x0"

type serializedConditionObject SerializedCondition

func (c SerializedCondition) IsNone() bool { return c.Type == ConditionNone }

func (c SerializedCondition) MarshalJSON() ([]byte, error) {
	if c.IsNone() {
		return json.Marshal(noneConditionWire)
	}
	obj := serializedConditionObject(c)
	if obj.Params == nil {
		obj.Params = map[string]string{}
	}
	if obj.Meta == nil {
		obj.Meta = map[string]string{}
	}
	return json.Marshal(obj)
}

func (c *SerializedCondition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != noneConditionWire {
			return fmt.Errorf("%w: unexpected condition %q", ErrInvalidConditionType, s)
		}
		*c = SerializedCondition{}
		return nil
	}

	var obj serializedConditionObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Type == ConditionNone {
		return fmt.Errorf("%w: missing condition type", ErrInvalidConditionType)
	}
	*c = SerializedCondition(obj)
	return nil
}

// wire keys of the condition params
const (
	paramDeadline    = "deadline"
	paramStealthUser = "stealthUser"
	paramRoothash    = "roothash"
	paramAltRoothash = "alrtRoothash"
	paramProof       = "proof"
	paramLogAddress  = "flankkLog"
	metaMultiplier   = "multiplier"
)

// SerializeCondition converts c to its wire form.
func SerializeCondition(c Condition) SerializedCondition {
	switch v := c.(type) {
	case TLC:
		return SerializedCondition{
			Type:   ConditionTLC,
			Params: map[string]string{paramDeadline: hexutil.EncodeBig(cloneInt(v.Deadline))},
			Meta:   map[string]string{},
		}
	case SSTLC:
		return SerializedCondition{
			Type: ConditionSSTLC,
			Params: map[string]string{
				paramDeadline:    hexutil.EncodeBig(cloneInt(v.Deadline)),
				paramStealthUser: v.StealthUser.Hex(),
			},
			Meta: map[string]string{metaMultiplier: v.Multiplier},
		}
	case CTLC:
		return SerializedCondition{
			Type: ConditionCTLC,
			Params: map[string]string{
				paramDeadline:    hexutil.EncodeBig(cloneInt(v.Deadline)),
				paramRoothash:    v.Roothash.Hex(),
				paramAltRoothash: v.AltRoothash.Hex(),
			},
			Meta: map[string]string{},
		}
	case CDTLC:
		return SerializedCondition{
			Type: ConditionCDTLC,
			Params: map[string]string{
				paramDeadline:   hexutil.EncodeBig(cloneInt(v.Deadline)),
				paramProof:      v.Proof.Hex(),
				paramLogAddress: v.LogAddress.Hex(),
			},
			Meta: map[string]string{},
		}
	default:
		return SerializedCondition{}
	}
}

// ParseCondition rebuilds a condition from its wire form. The CDTLC log
// address is resolved from verifiers for chainID.
func ParseCondition(sc SerializedCondition, chainID uint64, verifiers *Verifiers) (Condition, error) {
	if sc.IsNone() {
		return None{}, nil
	}

	deadline, err := requireHexInt(sc.Params, paramDeadline)
	if err != nil {
		return nil, err
	}

	switch sc.Type {
	case ConditionTLC:
		return TLC{Deadline: deadline}, nil
	case ConditionSSTLC:
		user, err := requireAddress(sc.Params, paramStealthUser)
		if err != nil {
			return nil, err
		}
		return SSTLC{Deadline: deadline, StealthUser: user, Multiplier: sc.Meta[metaMultiplier]}, nil
	case ConditionCTLC:
		root, err := requireHash(sc.Params, paramRoothash)
		if err != nil {
			return nil, err
		}
		alt, err := requireHash(sc.Params, paramAltRoothash)
		if err != nil {
			return nil, err
		}
		return CTLC{Deadline: deadline, Roothash: root, AltRoothash: alt}, nil
	case ConditionCDTLC:
		proof, err := requireHash(sc.Params, paramProof)
		if err != nil {
			return nil, err
		}
		logAddress, err := verifiers.LogAddress(chainID)
		if err != nil {
			return nil, err
		}
		return CDTLC{Deadline: deadline, Proof: proof, LogAddress: logAddress}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidConditionType, sc.Type)
	}
}

func requireParam(params map[string]string, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return "", fmt.Errorf("missing condition param %q", key)
	}
	return v, nil
}

func requireHexInt(params map[string]string, key string) (*big.Int, error) {
	raw, err := requireParam(params, key)
	if err != nil {
		return nil, err
	}
	v, err := parseHexInt(raw)
	if err != nil {
		return nil, fmt.Errorf("condition param %q: %w", key, err)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("condition param %q is negative", key)
	}
	return v, nil
}

func requireAddress(params map[string]string, key string) (common.Address, error) {
	raw, err := requireParam(params, key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("condition param %q is not an address", key)
	}
	return common.HexToAddress(raw), nil
}

func requireHash(params map[string]string, key string) (common.Hash, error) {
	raw, err := requireParam(params, key)
	if err != nil {
		return common.Hash{}, err
	}
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("condition param %q is not a 32 byte hash", key)
	}
	return common.BytesToHash(b), nil
}
