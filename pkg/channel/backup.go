package channel

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/flankk/node/flankk"
	"github.com/flankk/node/pkg/sign"
)

// ChannelBackup is the exported form of a channel. Signatures are relative to
// the party that exported it. The ledger itself is persisted separately.
type ChannelBackup struct {
	Token             common.Address `json:"token" validate:"required"`
	PartyA            common.Address `json:"partyA" validate:"required"`
	PartyB            common.Address `json:"partyB" validate:"required"`
	Domain            flankk.Domain  `json:"domain"`
	SelfSignedState   sign.Signature `json:"selfSignedState,omitempty"`
	PeerSignedState   sign.Signature `json:"peerSignedState,omitempty"`
	URL               string         `json:"url,omitempty" validate:"omitempty,url"`
	SettlementEndTime *hexutil.Big   `json:"settlementEndTime,omitempty"`
}

// Backup exports the channel from the local party's point of view.
func (c *Channel) Backup() ChannelBackup {
	b := ChannelBackup{
		Token:           c.token,
		PartyA:          c.partyA,
		PartyB:          c.partyB,
		Domain:          c.domain,
		SelfSignedState: c.SelfSignature(),
		PeerSignedState: c.PeerSignature(),
		URL:             c.url,
	}
	if c.settlementEndTime != nil {
		b.SettlementEndTime = (*hexutil.Big)(c.SettlementEndTime())
	}
	return b
}

// Restore rebuilds a channel from a backup for signer, attaching state. The
// signer must be one of the parties and the backup must belong to the chain
// of cc. Unless trusted, both signatures must sign the state hash of state.
func Restore(b ChannelBackup, signer sign.Signer, cc *ChainContext, state *State, trusted bool) (*Channel, error) {
	if err := validate.Struct(b); err != nil {
		return nil, fmt.Errorf("invalid backup: %w", err)
	}

	self := signer.Address()
	if self != b.PartyA && self != b.PartyB {
		return nil, fmt.Errorf("%w: %s", ErrWrongOwner, self)
	}
	if b.Domain.ChainID != cc.ChainID {
		return nil, fmt.Errorf("%w: backup chain %d, client chain %d", ErrWrongChain, b.Domain.ChainID, cc.ChainID)
	}

	opts := []Option{WithURL(b.URL)}
	if b.SettlementEndTime != nil {
		opts = append(opts, WithSettlementEndTime(b.SettlementEndTime.ToInt()))
	}
	c, err := NewChannel(b.Token, b.Domain, b.PartyA, b.PartyB, signer, cc, opts...)
	if err != nil {
		return nil, err
	}

	selfSide := c.SelfSide()
	*c.sigSlot(selfSide) = b.SelfSignedState.Clone()
	*c.sigSlot(selfSide.Other()) = b.PeerSignedState.Clone()

	if state != nil {
		c.Attach(state)
	}
	if trusted {
		return c, nil
	}
	if err := c.ValidateIntegrity(); err != nil {
		return nil, err
	}
	return c, nil
}
