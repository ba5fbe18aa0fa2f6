package channel

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/flankk/node/flankk"
)

// MaxBalanceBits is the width of a balance slot in the settlement contract (uint240).
const MaxBalanceBits = 240

// Side selects one of the two balance slots of a Record.
type Side uint8

const (
	SideA Side = iota
	SideB
)

func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// Record is an immutable pair of balances, one per party.
// The zero value is the (0, 0) record.
type Record struct {
	balA *big.Int
	balB *big.Int
}

// NewRecord copies its inputs; nil is read as zero.
func NewRecord(balA, balB *big.Int) Record {
	return Record{balA: cloneInt(balA), balB: cloneInt(balB)}
}

// NewRecordInt64 is a convenience constructor for small literal balances.
func NewRecordInt64(balA, balB int64) Record {
	return Record{balA: big.NewInt(balA), balB: big.NewInt(balB)}
}

// orientedRecord places self and peer into the slots implied by selfSide.
func orientedRecord(selfSide Side, self, peer *big.Int) Record {
	if selfSide == SideA {
		return NewRecord(self, peer)
	}
	return NewRecord(peer, self)
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

func (r Record) BalA() *big.Int { return cloneInt(r.balA) }
func (r Record) BalB() *big.Int { return cloneInt(r.balB) }

func (r Record) Balance(side Side) *big.Int {
	if side == SideA {
		return r.BalA()
	}
	return r.BalB()
}

func (r Record) Sum() *big.Int {
	return new(big.Int).Add(r.BalA(), r.BalB())
}

func (r Record) Add(o Record) Record {
	return Record{
		balA: new(big.Int).Add(r.BalA(), o.BalA()),
		balB: new(big.Int).Add(r.BalB(), o.BalB()),
	}
}

func (r Record) Equal(o Record) bool {
	return r.BalA().Cmp(o.BalA()) == 0 && r.BalB().Cmp(o.BalB()) == 0
}

func (r Record) IsZero() bool {
	return r.BalA().Sign() == 0 && r.BalB().Sign() == 0
}

// valid reports whether both balances fit an unsigned 240 bit slot.
func (r Record) valid() bool {
	for _, b := range []*big.Int{r.BalA(), r.BalB()} {
		if b.Sign() < 0 || b.BitLen() > MaxBalanceBits {
			return false
		}
	}
	return true
}

func (r Record) onchain() flankk.Record {
	return flankk.Record{User0Balance: r.BalA(), User1Balance: r.BalB()}
}

func (r Record) String() string {
	return fmt.Sprintf("(%s, %s)", r.BalA(), r.BalB())
}

// SerializedRecord is the hex wire form of a Record.
type SerializedRecord struct {
	BalA string `json:"balA" validate:"required,hexint"`
	BalB string `json:"balB" validate:"required,hexint"`
}

func (r Record) Serialize() SerializedRecord {
	return SerializedRecord{BalA: hexutil.EncodeBig(r.BalA()), BalB: hexutil.EncodeBig(r.BalB())}
}

// ParseRecord decodes a SerializedRecord. Negative values decode successfully
// so that integrity checks can report them as ErrInvalidRecords.
func ParseRecord(s SerializedRecord) (Record, error) {
	balA, err := parseHexInt(s.BalA)
	if err != nil {
		return Record{}, fmt.Errorf("balA: %w", err)
	}
	balB, err := parseHexInt(s.BalB)
	if err != nil {
		return Record{}, fmt.Errorf("balB: %w", err)
	}
	return Record{balA: balA, balB: balB}, nil
}

// parseHexInt accepts 0x-prefixed hex with an optional leading minus sign.
func parseHexInt(s string) (*big.Int, error) {
	negative := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	if !strings.HasPrefix(digits, "0x") && !strings.HasPrefix(digits, "0X") {
		return nil, fmt.Errorf("hex string %q without 0x prefix", s)
	}

	v, ok := new(big.Int).SetString(digits[2:], 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex number %q", s)
	}
	if negative {
		v.Neg(v)
	}
	return v, nil
}
