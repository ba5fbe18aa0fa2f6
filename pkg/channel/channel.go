package channel

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flankk/node/flankk"
	"github.com/flankk/node/pkg/sign"
)

// Status is the lifecycle stage of a channel as seen from its local ledger.
type Status string

const (
	StatusUnattached Status = "unattached" // no ledger bound yet
	StatusEmpty      Status = "empty"      // nothing deposited
	StatusFunded     Status = "funded"     // ledger started, not yet co-signed
	StatusOpen       Status = "open"       // both parties signed the current ledger
	StatusSettling   Status = "settling"   // on-chain settlement window running
	StatusClosed     Status = "closed"     // settlement window over
)

// Channel is one two-party channel: a token, a custody contract domain and
// an ordered pair of parties, bound to the local party's ledger.
//
// Which party is "self" is always derived from the signer's address, so the
// same Channel value never holds a stale role.
type Channel struct {
	token             common.Address
	domain            flankk.Domain
	partyA            common.Address
	partyB            common.Address
	id                common.Hash
	signer            sign.Signer
	cc                *ChainContext
	sigA              sign.Signature
	sigB              sign.Signature
	url               string
	settlementEndTime *big.Int
	state             *State
}

// Option configures optional Channel fields.
type Option func(*Channel)

// WithURL marks the peer as a full node reachable at url.
func WithURL(url string) Option {
	return func(c *Channel) { c.url = url }
}

// WithSettlementEndTime records the end of an on-chain settlement window.
func WithSettlementEndTime(t *big.Int) Option {
	return func(c *Channel) {
		if t != nil {
			c.settlementEndTime = new(big.Int).Set(t)
		}
	}
}

// NewChannel derives the channel id. The signer must be one of the parties
// and the domain must belong to the chain of cc.
func NewChannel(token common.Address, domain flankk.Domain, partyA, partyB common.Address, signer sign.Signer, cc *ChainContext, opts ...Option) (*Channel, error) {
	self := signer.Address()
	if self != partyA && self != partyB {
		return nil, fmt.Errorf("%w: %s is neither %s nor %s", ErrWrongOwner, self, partyA, partyB)
	}
	if domain.ChainID != cc.ChainID {
		return nil, fmt.Errorf("%w: domain chain %d, client chain %d", ErrWrongChain, domain.ChainID, cc.ChainID)
	}

	id, err := flankk.ChannelID(token, partyA, partyB, domain)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		token:  token,
		domain: domain,
		partyA: partyA,
		partyB: partyB,
		id:     id,
		signer: signer,
		cc:     cc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Channel) ID() common.Hash        { return c.id }
func (c *Channel) Token() common.Address  { return c.token }
func (c *Channel) Domain() flankk.Domain  { return c.domain }
func (c *Channel) PartyA() common.Address { return c.partyA }
func (c *Channel) PartyB() common.Address { return c.partyB }
func (c *Channel) URL() string            { return c.url }

// SettlementEndTime returns the end of the settlement window, or nil.
func (c *Channel) SettlementEndTime() *big.Int {
	if c.settlementEndTime == nil {
		return nil
	}
	return new(big.Int).Set(c.settlementEndTime)
}

// SetSettlementEndTime records a settlement observed on chain.
func (c *Channel) SetSettlementEndTime(t *big.Int) {
	WithSettlementEndTime(t)(c)
}

// Attach binds the ledger the channel operates on.
func (c *Channel) Attach(state *State) *Channel {
	c.state = state
	return c
}

// State returns the bound ledger.
func (c *Channel) State() (*State, error) {
	if c.state == nil {
		return nil, ErrStateUnattached
	}
	return c.state, nil
}

// SelfSide is the balance slot of the local party.
func (c *Channel) SelfSide() Side {
	if c.signer.Address() == c.partyA {
		return SideA
	}
	return SideB
}

func (c *Channel) Self() common.Address {
	if c.SelfSide() == SideA {
		return c.partyA
	}
	return c.partyB
}

func (c *Channel) Peer() common.Address {
	if c.SelfSide() == SideA {
		return c.partyB
	}
	return c.partyA
}

func (c *Channel) sigSlot(side Side) *sign.Signature {
	if side == SideA {
		return &c.sigA
	}
	return &c.sigB
}

// SelfSignature is the local party's signature over the last signed state.
func (c *Channel) SelfSignature() sign.Signature {
	return c.sigSlot(c.SelfSide()).Clone()
}

// PeerSignature is the peer's signature over the last signed state.
func (c *Channel) PeerSignature() sign.Signature {
	return c.sigSlot(c.SelfSide().Other()).Clone()
}

// IsFullNode reports whether the peer is a reachable node.
func (c *Channel) IsFullNode() bool {
	return c.url != ""
}

// IsOpen reports a started ledger signed by both parties.
func (c *Channel) IsOpen() bool {
	return c.state != nil && c.state.nonce > 0 && !c.sigA.IsEmpty() && !c.sigB.IsEmpty()
}

// Status derives the lifecycle stage from the ledger, signatures and settlement window.
func (c *Channel) Status() Status {
	if c.settlementEndTime != nil {
		if c.settlementEndTime.Cmp(c.cc.Now()) > 0 {
			return StatusSettling
		}
		return StatusClosed
	}

	switch {
	case c.state == nil:
		return StatusUnattached
	case c.state.nonce == 0:
		return StatusEmpty
	case c.IsOpen():
		return StatusOpen
	default:
		return StatusFunded
	}
}

// Balances is the ledger split from the local party's point of view.
type Balances struct {
	SelfSettled  *big.Int `json:"selfSettled"`
	PeerSettled  *big.Int `json:"peerSettled"`
	SelfIncoming *big.Int `json:"selfIncoming"` // pending conditional amounts towards self
	PeerIncoming *big.Int `json:"peerIncoming"` // pending conditional amounts towards peer
	Total        *big.Int `json:"total"`
}

func (c *Channel) Balances() (Balances, error) {
	state, err := c.State()
	if err != nil {
		return Balances{}, err
	}

	self := c.SelfSide()
	settled := state.SettledBalances()
	pending := state.PendingBalances()
	return Balances{
		SelfSettled:  settled.Balance(self),
		PeerSettled:  settled.Balance(self.Other()),
		SelfIncoming: pending.Balance(self),
		PeerIncoming: pending.Balance(self.Other()),
		Total:        state.TotalBalance(),
	}, nil
}
