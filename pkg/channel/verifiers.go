package channel

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// OptimismSepoliaChainID is the chain the default verifier deployment lives on.
const OptimismSepoliaChainID uint64 = 11155420

// VerifierSet holds the condition verifier contracts of one chain, plus the
// deposit log contract referenced by CDTLC conditions.
type VerifierSet struct {
	TLC   common.Address
	SSTLC common.Address
	CTLC  common.Address
	CDTLC common.Address
	Log   common.Address
}

// Verifiers is an immutable (chainID, ConditionType) -> verifier address table.
type Verifiers struct {
	chains map[uint64]VerifierSet
}

// NewVerifiers copies chains into a new table.
func NewVerifiers(chains map[uint64]VerifierSet) *Verifiers {
	cp := make(map[uint64]VerifierSet, len(chains))
	for id, set := range chains {
		cp[id] = set
	}
	return &Verifiers{chains: cp}
}

// DefaultVerifiers returns the table of the public deployments.
func DefaultVerifiers() *Verifiers {
	return NewVerifiers(map[uint64]VerifierSet{
		OptimismSepoliaChainID: {
			TLC:   common.HexToAddress("0xc28a967F85F5E1B2ece4afBAE2DE5Dbfe203A5FB"),
			SSTLC: common.HexToAddress("0x116d38Ec6a10912014597700C814fBA3DCA67B58"),
			CTLC:  common.HexToAddress("0xb41357E5794EA79D476D9049aF48CaFFa28be95F"),
			CDTLC: common.HexToAddress("0x535Af9Ff8fB77dB01095eE05E097ada39143a383"),
			Log:   common.HexToAddress("0x92879b56273Cd2fA620b3C03c07Fd87a61d3E7B9"),
		},
	})
}

// Address returns the verifier of t on chainID. None maps to the zero address.
func (v *Verifiers) Address(chainID uint64, t ConditionType) (common.Address, error) {
	if t == ConditionNone {
		return common.Address{}, nil
	}

	set, ok := v.chains[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: no verifiers for chain %d", ErrInvalidConditionType, chainID)
	}

	switch t {
	case ConditionTLC:
		return set.TLC, nil
	case ConditionSSTLC:
		return set.SSTLC, nil
	case ConditionCTLC:
		return set.CTLC, nil
	case ConditionCDTLC:
		return set.CDTLC, nil
	default:
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidConditionType, t)
	}
}

// LogAddress returns the deposit log contract of chainID.
func (v *Verifiers) LogAddress(chainID uint64) (common.Address, error) {
	set, ok := v.chains[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: no deposit log for chain %d", ErrInvalidConditionType, chainID)
	}
	return set.Log, nil
}

// Chains returns the configured chain ids in ascending order.
func (v *Verifiers) Chains() []uint64 {
	ids := make([]uint64, 0, len(v.chains))
	for id := range v.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
